// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidislock"
	"github.com/redis/rueidis/rueidisotel"
)

// NewRueidisClient creates a rueidis.Client from RedisConfig, optionally wrapped
// with rueidisotel, and fails fast with a PING.
func NewRueidisClient(ctx context.Context, opt RedisConfig) (rueidis.Client, error) {
	clientOpt, err := ClientOption(opt)
	if err != nil {
		return nil, err
	}

	var cli rueidis.Client
	if opt.EnableOtel {
		cli, err = rueidisotel.NewClient(clientOpt)
	} else {
		cli, err = rueidis.NewClient(clientOpt)
	}
	if err != nil {
		slog.ErrorContext(ctx, "error during rueidis init", slog.Any("error", err))
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cli.Do(pingCtx, cli.B().Ping().Build()).Error(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("rueidis: ping: %w", err)
	}

	slog.InfoContext(ctx, "rueidis: connected",
		slog.String("mode", string(cli.Mode())),
		slog.String("client_name", opt.ClientName),
	)

	return cli, nil
}

// HealthCheck returns a readiness probe that PINGs through cli.
func HealthCheck(cli rueidis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return cli.Do(ctx, cli.B().Ping().Build()).Error()
	}
}

// NewLocker builds a rueidislock.Locker on its own connections. KeyMajority
// is 1, which suits a single primary.
func NewLocker(opt RedisConfig) (rueidislock.Locker, error) {
	clientOpt, err := ClientOption(opt)
	if err != nil {
		return nil, err
	}
	// rueidislock relies on client tracking, so the client side cache must stay on
	clientOpt.DisableCache = false

	return rueidislock.NewLocker(rueidislock.LockerOption{
		ClientOption:   clientOpt,
		KeyPrefix:      opt.LockPrefix(),
		KeyMajority:    1,
		NoLoopTracking: true,
	})
}

// ClientOption validates the URL and TLS settings and converts RedisConfig into rueidis options.
func ClientOption(opt RedisConfig) (rueidis.ClientOption, error) {
	if opt.URL == "" {
		return rueidis.ClientOption{}, errors.New("rueidis: URL must not be empty")
	}
	u, err := url.Parse(opt.URL)
	if err != nil {
		return rueidis.ClientOption{}, fmt.Errorf("rueidis: parse url: %w", err)
	}
	if u.Scheme == "redis" {
		if opt.RequireTLS {
			return rueidis.ClientOption{}, errors.New("rueidis: RequireTLS=true but URL uses redis:// (plaintext); use rediss://")
		}
		if opt.SkipTLSVerify {
			slog.Warn("rueidis: SkipTLSVerify has no effect on a redis:// URL", slog.String("host", u.Hostname()))
		}
	}

	clientOpt, err := rueidis.ParseURL(opt.URL)
	if err != nil {
		return rueidis.ClientOption{}, fmt.Errorf("rueidis: %w", err)
	}
	clientOpt.ClientName = opt.ClientName
	clientOpt.DisableCache = opt.DisableCache
	if opt.ConnWriteTimeout > 0 {
		clientOpt.ConnWriteTimeout = opt.ConnWriteTimeout
	}
	if opt.SkipTLSVerify && clientOpt.TLSConfig != nil {
		tc := clientOpt.TLSConfig.Clone()
		tc.InsecureSkipVerify = true //nolint:gosec
		clientOpt.TLSConfig = tc
	}
	return clientOpt, nil
}
