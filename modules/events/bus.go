// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events is an in-process publish/subscribe bus for domain events.
//
// Delivery is best-effort: handlers run synchronously in registration order,
// and a failing or panicking handler is logged and skipped without affecting
// the publisher or the remaining handlers. The Handler signature is the seam
// for durable transports (see KafkaSink).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Wildcard subscribes a handler to every event name.
const Wildcard = "*"

type (
	// Event is the wire shape shared by every domain event.
	Event struct {
		Name    string    `json:"name"`
		ID      string    `json:"id"`
		At      time.Time `json:"at"`
		Actor   *Actor    `json:"actor,omitempty"`
		Payload any       `json:"payload"`
	}

	Actor struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}

	Handler func(ctx context.Context, evt Event) error

	Bus struct {
		mu     sync.RWMutex
		subs   map[string][]subscription
		nextID uint64
		logger *slog.Logger
	}

	subscription struct {
		id      uint64
		name    string
		handler Handler
	}

	BusOption func(*Bus)
)

// NewID returns a time-ordered UUIDv7 for events that have no natural id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// LogSubscriber logs every event it receives at info level.
func LogSubscriber(l *slog.Logger) Handler {
	if l == nil {
		l = slog.Default()
	}
	return func(ctx context.Context, evt Event) error {
		l.InfoContext(ctx, "domain event",
			slog.String("event.name", evt.Name),
			slog.String("event.id", evt.ID),
			slog.Time("event.at", evt.At),
		)
		return nil
	}
}

func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[string][]subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers h for events named name (or Wildcard).
// The returned function removes the subscription.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, name: name, handler: h}
	b.subs[name] = append(b.subs[name], sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[name]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers evt to every matching handler. It never fails.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs[evt.Name])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[evt.Name]...)
	if evt.Name != Wildcard {
		targets = append(targets, b.subs[Wildcard]...)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := b.deliver(ctx, s, evt); err != nil {
			b.logger.ErrorContext(ctx, "event subscriber failed",
				slog.String("event.name", evt.Name),
				slog.String("event.id", evt.ID),
				slog.String("subscription", s.name),
				slog.Any("error", err),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("events: subscriber panic: %v", rec)
		}
	}()
	return s.handler(ctx, evt)
}
