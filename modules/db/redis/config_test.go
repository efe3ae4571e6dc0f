package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfig_Prefixes(t *testing.T) {
	cfg := RedisConfig{Namespace: "aboba"}
	assert.Equal(t, "aboba:rl", cfg.RateLimitPrefix())
	assert.Equal(t, "aboba:lock", cfg.LockPrefix())

	assert.Equal(t, "rl", RedisConfig{}.RateLimitPrefix())
}

func TestClientOption(t *testing.T) {
	opt, err := ClientOption(RedisConfig{
		URL:              "redis://:secret@cache:6379/2",
		ClientName:       "aboba-worker",
		DisableCache:     true,
		ConnWriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cache:6379"}, opt.InitAddress)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.SelectDB)
	assert.Equal(t, "aboba-worker", opt.ClientName)
	assert.True(t, opt.DisableCache)
	assert.Equal(t, 3*time.Second, opt.ConnWriteTimeout)
}

func TestClientOption_TLS(t *testing.T) {
	_, err := ClientOption(RedisConfig{URL: "redis://cache:6379", RequireTLS: true})
	assert.Error(t, err)

	opt, err := ClientOption(RedisConfig{URL: "rediss://cache:6380", RequireTLS: true, SkipTLSVerify: true})
	require.NoError(t, err)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)
}

func TestClientOption_Rejects(t *testing.T) {
	_, err := ClientOption(RedisConfig{})
	assert.Error(t, err)

	_, err = ClientOption(RedisConfig{URL: "http://cache:6379"})
	assert.Error(t, err)
}
