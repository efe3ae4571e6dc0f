package appconfig

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, int64(25*1024*1024), cfg.Media.MaxUploadBytes)
	assert.Equal(t, 10*time.Minute, cfg.Media.VariantTTL)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 85, cfg.Worker.JPEGQuality)
	assert.Equal(t, "media.process_photo", cfg.Queue.Name)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("MEDIA_VARIANT_TTL", "1h")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("S3_BUCKET_DERIVED", "variants")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, time.Hour, cfg.Media.VariantTTL)
	assert.Equal(t, 16, cfg.Worker.Concurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "variants", cfg.S3.DerivedBucket)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero upload limit", map[string]string{"MEDIA_MAX_UPLOAD_BYTES": "0"}, "MEDIA_MAX_UPLOAD_BYTES"},
		{"variant ttl beyond a week", map[string]string{"MEDIA_VARIANT_TTL": "200h"}, "MEDIA_VARIANT_TTL"},
		{"no workers", map[string]string{"WORKER_CONCURRENCY": "0"}, "WORKER_CONCURRENCY"},
		{"jpeg quality above 100", map[string]string{"WORKER_JPEG_QUALITY": "101"}, "WORKER_JPEG_QUALITY"},
		{"lease shorter than job", map[string]string{"QUEUE_LEASE": "1m"}, "QUEUE_LEASE"},
		{"default password outside dev", map[string]string{"ENV": "prod"}, "postgres password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLevel_UnknownFallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "chatty"}
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
