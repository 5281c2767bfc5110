// Package config loads contactsync settings from an optional
// contactsync.yaml and CONTACTSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type CacheConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	TTL             time.Duration `mapstructure:"ttl"`
	ValidationTTL   time.Duration `mapstructure:"validation_ttl"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	// Policy is "fifo" or "lru".
	Policy string `mapstructure:"policy"`
}

type SessionConfig struct {
	DSN string `mapstructure:"dsn"`
}

type WatchConfig struct {
	Path         string        `mapstructure:"path"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollJitter   float64       `mapstructure:"poll_jitter"`
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Capacity:        1000,
			TTL:             5 * time.Minute,
			ValidationTTL:   30 * time.Second,
			MaxPayloadBytes: 500000,
			Policy:          "fifo",
		},
		Session: SessionConfig{
			DSN: "file://.contactsync/session.json",
		},
		Watch: WatchConfig{
			MinInterval: 2 * time.Second,
			PollJitter:  0.2,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "CONTACTSYNC" and the dot character
// in keys is replaced by an underscore, so "api.base_url" becomes
// "CONTACTSYNC_API_BASE_URL". A non-empty file overrides the default
// contactsync.yaml lookup in the working directory.
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("contactsync")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CONTACTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Policy)) {
	case "", "fifo", "lru":
	default:
		return fmt.Errorf("cache.policy must be fifo or lru, got %q", c.Cache.Policy)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
