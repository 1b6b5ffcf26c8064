package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FLICKR_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[worker]
cache_size = 50
preload_count = 10

[fetch]
user_agent = "gallery/2.0"
request_timeout = "5s"
rate_limit = 2.5

[flickr]
api_key = "abc"
per_page = 30

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Worker.CacheSize)
	assert.Equal(t, 10, cfg.Worker.PreloadCount)
	assert.Equal(t, "gallery/2.0", cfg.Fetch.UserAgent)
	assert.Equal(t, Duration(5*time.Second), cfg.Fetch.RequestTimeout)
	assert.Equal(t, 2.5, cfg.Fetch.RateLimit)
	assert.Equal(t, "abc", cfg.Flickr.APIKey)
	assert.Equal(t, 30, cfg.Flickr.PerPage)
	// Unset keys keep their defaults
	assert.Equal(t, "https://api.flickr.com/services/rest/", cfg.Flickr.Endpoint)
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)

	log := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("THUMBFETCH_FLICKR_API_KEY", "from-env")
	t.Setenv("THUMBFETCH_CACHE_SIZE", "7")
	t.Setenv("THUMBFETCH_REQUEST_TIMEOUT", "2s")
	t.Setenv("THUMBFETCH_LOG_LEVEL", "warn")

	path := writeConfig(t, `
[flickr]
api_key = "from-file"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Flickr.APIKey)
	assert.Equal(t, 7, cfg.Worker.CacheSize)
	assert.Equal(t, Duration(2*time.Second), cfg.Fetch.RequestTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"THUMBFETCH_CACHE_SIZE", "lots"},
		{"THUMBFETCH_PRELOAD_COUNT", "1.5"},
		{"THUMBFETCH_REQUEST_TIMEOUT", "soon"},
		{"THUMBFETCH_CACHE_SIZE", "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
			require.Error(t, err)
		})
	}
}

func TestLoad_ZeroCacheSizeFromEnv(t *testing.T) {
	t.Setenv("THUMBFETCH_CACHE_SIZE", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Worker.CacheSize, "zero selects an unbounded cache")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative_cache", "[worker]\ncache_size = -1\n"},
		{"negative_preload", "[worker]\npreload_count = -1\n"},
		{"bad_duration", "[fetch]\nrequest_timeout = \"soon\"\n"},
		{"zero_timeout", "[fetch]\nrequest_timeout = \"0s\"\n"},
		{"per_page", "[flickr]\nper_page = 501\n"},
		{"log_level", "[log]\nlevel = \"chatty\"\n"},
		{"log_format", "[log]\nformat = \"xml\"\n"},
		{"not_toml", "worker = [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	t.Setenv("FLICKR_API_KEY", "")
	data, err := Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "30s")

	cfg, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
