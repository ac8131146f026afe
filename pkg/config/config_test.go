package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 1e-6, cfg.Search.RelevanceEpsilon)
	assert.Equal(t, 64, cfg.Search.AccumulatorShards)
	assert.Equal(t, 1440, cfg.Analytics.RequestWindow)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9000
search:
  maxResults: 10
  stopWords: [and, in, on]
  defaultMode: parallel
analytics:
  requestWindow: 60
redis:
  enabled: true
  cacheTTL: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("TS_SERVER_PORT", "9100")
	t.Setenv("TS_KAFKA_ENABLED", "true")
	t.Setenv("TS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, []string{"and", "in", "on"}, cfg.Search.StopWords)
	assert.Equal(t, "parallel", cfg.Search.DefaultMode)
	assert.Equal(t, 60, cfg.Analytics.RequestWindow)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 64, cfg.Search.AccumulatorShards)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  defaultMode: turbo\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStopWordsFromEnv(t *testing.T) {
	t.Setenv("TS_SEARCH_STOP_WORDS", "a the  of")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "the", "of"}, cfg.Search.StopWords)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}

func TestServerLimitsFromEnv(t *testing.T) {
	t.Setenv("TS_SERVER_RATE_LIMIT", "120")
	t.Setenv("TS_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	t.Setenv("TS_SERVER_RATE_LIMIT", "-1")
	_, err = Load("")
	assert.Error(t, err)
}
