// Package config loads psync configuration from .env files, environment
// variables, and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/evcraddock/property-sync/internal/lookup"
	"github.com/evcraddock/property-sync/internal/store"
)

// EnvPrefix is prepended to every environment variable: store.uri is
// read from PSYNC_STORE_URI.
const EnvPrefix = "PSYNC"

// Config is the full psync configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Lookup LookupConfig `yaml:"lookup"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`

	// File is the config file that was read, if any.
	File string `yaml:"-"`
}

// StoreConfig describes the document store.
type StoreConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LookupConfig describes the valuation service client.
type LookupConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP API. URL, when set, points CLI
// commands at a running server instead of a local store. APIToken is
// required by serve and sent as a bearer token by remote commands.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	URL      string `yaml:"url"`
	APIToken string `yaml:"api_token"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			URI:        store.DefaultURI,
			Database:   store.DefaultDatabase,
			Collection: store.DefaultCollection,
			Timeout:    10 * time.Second,
		},
		Lookup: LookupConfig{
			BaseURL:       lookup.DefaultBaseURL,
			Timeout:       15 * time.Second,
			RatePerSecond: 1,
			Burst:         1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// DefaultPath returns the default config file path: ~/.config/psync/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "psync", "config.yaml"), nil
}

// Load reads configuration in order of precedence:
// 1. Environment variables (after .env.local and .env are applied)
// 2. The config file (configFile, or the default path if it exists)
// 3. Defaults
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else if path, err := DefaultPath(); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			URI:        v.GetString("store.uri"),
			Database:   v.GetString("store.database"),
			Collection: v.GetString("store.collection"),
			Timeout:    v.GetDuration("store.timeout"),
		},
		Lookup: LookupConfig{
			APIKey:        v.GetString("lookup.api_key"),
			BaseURL:       v.GetString("lookup.base_url"),
			Timeout:       v.GetDuration("lookup.timeout"),
			RatePerSecond: v.GetFloat64("lookup.rate_per_second"),
			Burst:         v.GetInt("lookup.burst"),
			CacheTTL:      v.GetDuration("lookup.cache_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Port:     v.GetInt("server.port"),
			URL:      v.GetString("server.url"),
			APIToken: v.GetString("server.api_token"),
		},
		File: v.ConfigFileUsed(),
	}

	// An explicitly empty descriptor still means the local default.
	if strings.TrimSpace(cfg.Store.URI) == "" {
		cfg.Store.URI = store.DefaultURI
	}

	return cfg, nil
}

// StoreOptions converts the store section for store.Open.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		URI:        c.Store.URI,
		Database:   c.Store.Database,
		Collection: c.Store.Collection,
		Timeout:    c.Store.Timeout,
	}
}

// LookupOptions converts the lookup section for lookup.NewClient.
func (c *Config) LookupOptions() []lookup.Option {
	return []lookup.Option{
		lookup.WithBaseURL(c.Lookup.BaseURL),
		lookup.WithTimeout(c.Lookup.Timeout),
		lookup.WithRateLimit(c.Lookup.RatePerSecond, c.Lookup.Burst),
		lookup.WithCacheTTL(c.Lookup.CacheTTL),
	}
}

// Write saves cfg as YAML at path, creating parent directories.
// The file may hold API keys, so it is written owner-only.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(fileForm(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.uri", d.Store.URI)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.collection", d.Store.Collection)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("lookup.api_key", d.Lookup.APIKey)
	v.SetDefault("lookup.base_url", d.Lookup.BaseURL)
	v.SetDefault("lookup.timeout", d.Lookup.Timeout)
	v.SetDefault("lookup.rate_per_second", d.Lookup.RatePerSecond)
	v.SetDefault("lookup.burst", d.Lookup.Burst)
	v.SetDefault("lookup.cache_ttl", d.Lookup.CacheTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.api_token", d.Server.APIToken)
}

// fileForm renders durations as strings so the YAML reads naturally.
func fileForm(c Config) map[string]any {
	return map[string]any{
		"store": map[string]any{
			"uri":        c.Store.URI,
			"database":   c.Store.Database,
			"collection": c.Store.Collection,
			"timeout":    c.Store.Timeout.String(),
		},
		"lookup": map[string]any{
			"api_key":         c.Lookup.APIKey,
			"base_url":        c.Lookup.BaseURL,
			"timeout":         c.Lookup.Timeout.String(),
			"rate_per_second": c.Lookup.RatePerSecond,
			"burst":           c.Lookup.Burst,
			"cache_ttl":       c.Lookup.CacheTTL.String(),
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"server": map[string]any{
			"port":      c.Server.Port,
			"url":       c.Server.URL,
			"api_token": c.Server.APIToken,
		},
	}
}

// loadEnvFiles applies .env.local then .env. godotenv never overrides a
// variable that is already set, so .env.local wins over .env and the
// real environment wins over both.
func loadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}
