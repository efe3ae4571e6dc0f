package redis

import "time"

// RedisConfig configures the rueidis clients of the api and the worker.
//
// URL is a standard Redis URI:
//
//   - Single:  redis://:password@localhost:6379/0
//   - TLS:     rediss://:password@my-redis.example.com:6379/0
//   - Cluster: redis://:password@host1:6379/0?addr=host2:6379&addr=host3:6379
type RedisConfig struct {
	URL        string `env:"URL" envDefault:"redis://:redis@localhost:6379/0"`
	ClientName string `env:"CLIENT_NAME"`

	// Namespace prefixes the keys this service owns outside the job queue:
	// rate limit counters and distributed locks.
	Namespace string `env:"NAMESPACE" envDefault:"aboba"`

	// RequireTLS rejects redis:// URLs. SkipTLSVerify is for managed Redis
	// with certificates that do not match the endpoint.
	RequireTLS    bool `env:"REQUIRE_TLS"`
	SkipTLSVerify bool `env:"SKIP_TLS_VERIFY"`

	// nothing reads through DoCache; the locker turns the cache back on for itself
	DisableCache     bool          `env:"DISABLE_CACHE" envDefault:"true"`
	ConnWriteTimeout time.Duration `env:"CONN_WRITE_TIMEOUT"`

	EnableOtel bool `env:"ENABLE_OTEL"`
}

// RateLimitPrefix is the key prefix of rate limit counters, e.g. "aboba:rl".
func (c RedisConfig) RateLimitPrefix() string { return c.key("rl") }

// LockPrefix is the key prefix of rueidislock locks, e.g. "aboba:lock".
func (c RedisConfig) LockPrefix() string { return c.key("lock") }

func (c RedisConfig) key(kind string) string {
	if c.Namespace == "" {
		return kind
	}
	return c.Namespace + ":" + kind
}
