package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where thumbfetch looks for its configuration
const DefaultPath = "thumbfetch.toml"

// Config represents the complete thumbfetch configuration
type Config struct {
	Worker WorkerConfig `toml:"worker"`
	Fetch  FetchConfig  `toml:"fetch"`
	Flickr FlickrConfig `toml:"flickr"`
	Log    LogConfig    `toml:"log"`
}

// WorkerConfig sizes the thumbnail worker
type WorkerConfig struct {
	CacheSize    int `toml:"cache_size"`
	PreloadCount int `toml:"preload_count"`
}

// FetchConfig holds image download settings
type FetchConfig struct {
	UserAgent      string   `toml:"user_agent"`
	RequestTimeout Duration `toml:"request_timeout"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	MaxContentSize int64    `toml:"max_content_size"`
	MaxPixels      int      `toml:"max_pixels"`
	MaxRedirects   int      `toml:"max_redirects"`
}

// FlickrConfig holds photo listing settings
type FlickrConfig struct {
	APIKey   string `toml:"api_key"`
	Endpoint string `toml:"endpoint"`
	PerPage  int    `toml:"per_page"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as text ("30s") in the config file
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			CacheSize:    100,
			PreloadCount: 20,
		},
		Fetch: FetchConfig{
			UserAgent:      "thumbfetch/1.0",
			RequestTimeout: Duration(30 * time.Second),
			RateLimit:      10,
			RateBurst:      20,
			MaxContentSize: 10 * 1024 * 1024,
			MaxPixels:      4096 * 4096,
			MaxRedirects:   5,
		},
		Flickr: FlickrConfig{
			Endpoint: "https://api.flickr.com/services/rest/",
			PerPage:  100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a TOML file with environment variable overrides.
// A missing file is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if key := os.Getenv("FLICKR_API_KEY"); key != "" {
		c.Flickr.APIKey = key
	}
	if key := os.Getenv("THUMBFETCH_FLICKR_API_KEY"); key != "" {
		c.Flickr.APIKey = key
	}
	if endpoint := os.Getenv("THUMBFETCH_FLICKR_ENDPOINT"); endpoint != "" {
		c.Flickr.Endpoint = endpoint
	}
	if err := getEnvInt("THUMBFETCH_CACHE_SIZE", &c.Worker.CacheSize); err != nil {
		return err
	}
	if err := getEnvInt("THUMBFETCH_PRELOAD_COUNT", &c.Worker.PreloadCount); err != nil {
		return err
	}
	if ua := os.Getenv("THUMBFETCH_USER_AGENT"); ua != "" {
		c.Fetch.UserAgent = ua
	}
	if err := getEnvDuration("THUMBFETCH_REQUEST_TIMEOUT", &c.Fetch.RequestTimeout); err != nil {
		return err
	}
	if level := os.Getenv("THUMBFETCH_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("THUMBFETCH_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	return nil
}

func (c *Config) validate() error {
	if c.Worker.CacheSize < 0 {
		return fmt.Errorf("worker cache size must not be negative")
	}
	if c.Worker.PreloadCount < 0 {
		return fmt.Errorf("worker preload count must not be negative")
	}
	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("fetch rate limit must not be negative")
	}
	if c.Fetch.MaxPixels < 0 {
		return fmt.Errorf("fetch max pixels must not be negative")
	}
	if c.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch request timeout must be positive")
	}
	if c.Flickr.PerPage <= 0 || c.Flickr.PerPage > 500 {
		return fmt.Errorf("flickr per_page must be between 1 and 500")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Logger builds a logrus logger from the log settings
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Marshal converts a Config struct to TOML bytes
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func getEnvInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func getEnvDuration(key string, dst *Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}
