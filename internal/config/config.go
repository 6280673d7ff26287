// Package config loads service settings from embedded defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// Workbooks every deployment must configure.
var RequiredWorkbooks = []string{"remittance", "transactions", "rewards", "travelbuddy"}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Log        LogConfig          `yaml:"log"`
	Timezone   string             `yaml:"timezone"`
	Workbooks  WorkbookConfig     `yaml:"workbooks"`
	GCS        GCSConfig          `yaml:"gcs"`
	Cache      CacheConfig        `yaml:"cache"`
	Trips      TripsConfig        `yaml:"trips"`
	Worker     WorkerConfig       `yaml:"worker"`
	FXRates    map[string]float64 `yaml:"fx_rates"`
	Strategies StrategyConfig     `yaml:"reward_strategies"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WorkbookConfig locates the source workbooks. Files values are local paths
// or gs://bucket/object URIs.
type WorkbookConfig struct {
	Password string            `yaml:"password"`
	Files    map[string]string `yaml:"files"`
}

type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// CacheConfig configures both cache tiers. An empty RedisURL disables the
// external tier.
type CacheConfig struct {
	RedisURL  string        `yaml:"redis_url"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

type TripsConfig struct {
	HomeCountry string `yaml:"home_country"`
	GapDays     int    `yaml:"gap_days"`
}

type WorkerConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Workers         int           `yaml:"workers"`
	MaxRetries      int           `yaml:"max_retries"`
}

// StrategyConfig holds the canned reward recommendations per spend category.
type StrategyConfig struct {
	Default    string            `yaml:"default"`
	Categories map[string]string `yaml:"categories"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(embeddedDefaults, cfg); err != nil {
		return nil, fmt.Errorf("Default: parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration. path is an optional YAML overlay; envFile
// is an optional dotenv file, silently skipped when it does not exist.
// Environment variables win over both.
func Load(path, envFile string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Load: loading %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("applyEnv: %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("applyEnv: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("APP_TIMEZONE", &c.Timezone)
	str("WORKBOOK_PASSWORD", &c.Workbooks.Password)
	str("GCS_CREDENTIALS_FILE", &c.GCS.CredentialsFile)
	str("GCS_ENDPOINT", &c.GCS.Endpoint)
	str("REDIS_URL", &c.Cache.RedisURL)
	str("CACHE_KEY_PREFIX", &c.Cache.KeyPrefix)
	str("HOME_COUNTRY", &c.Trips.HomeCountry)

	if c.Workbooks.Files == nil {
		c.Workbooks.Files = map[string]string{}
	}
	for _, name := range RequiredWorkbooks {
		if v, ok := lookup(strings.ToUpper(name) + "_FILE"); ok && v != "" {
			c.Workbooks.Files[name] = v
		}
	}

	for _, set := range []func() error{
		func() error { return integer("PORT", &c.Server.Port) },
		func() error { return integer("TRIP_GAP_DAYS", &c.Trips.GapDays) },
		func() error { return integer("WORKER_COUNT", &c.Worker.Workers) },
		func() error { return integer("WORKER_MAX_RETRIES", &c.Worker.MaxRetries) },
		func() error { return duration("MEMORY_CACHE_TTL", &c.Cache.MemoryTTL) },
		func() error { return duration("REDIS_CACHE_TTL", &c.Cache.RedisTTL) },
		func() error { return duration("REFRESH_INTERVAL", &c.Worker.RefreshInterval) },
	} {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("Validate: port %d out of range", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, name := range RequiredWorkbooks {
		if strings.TrimSpace(c.Workbooks.Files[name]) == "" {
			return fmt.Errorf("Validate: no file configured for workbook %q", name)
		}
	}
	if c.Cache.MemoryTTL <= 0 {
		return fmt.Errorf("Validate: memory cache ttl must be positive, got %s", c.Cache.MemoryTTL)
	}
	if c.Cache.RedisTTL <= 0 {
		return fmt.Errorf("Validate: redis cache ttl must be positive, got %s", c.Cache.RedisTTL)
	}
	if c.Trips.GapDays <= 0 {
		return fmt.Errorf("Validate: trip gap must be at least one day, got %d", c.Trips.GapDays)
	}
	if c.Worker.Workers <= 0 {
		return fmt.Errorf("Validate: worker count must be positive, got %d", c.Worker.Workers)
	}
	if c.Worker.RefreshInterval <= 0 {
		return fmt.Errorf("Validate: refresh interval must be positive, got %s", c.Worker.RefreshInterval)
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("Location: loading %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TripGap is the longest pause allowed inside a single trip.
func (c *Config) TripGap() time.Duration {
	return time.Duration(c.Trips.GapDays) * 24 * time.Hour
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
