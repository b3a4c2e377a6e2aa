package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

const envPrefix = "MEDICAMENTA"

// Config holds all configuration for medicamenta
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Lock      LockConfig      `mapstructure:"lock"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`

	// path of the file the config was read from, empty when none
	File string `mapstructure:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	// Backend is "sqlite" or "badger"
	Backend    string        `mapstructure:"backend"`
	DataDir    string        `mapstructure:"data_dir"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	BadgerPath string        `mapstructure:"badger_path"`
	InMemory   bool          `mapstructure:"in_memory"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the store
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// consecutive failures that open the breaker
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AdminPassword string        `mapstructure:"admin_password"`
	AllowOrigins  []string      `mapstructure:"allow_origins"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// RateLimitConfig is the per-owner API budget
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LockConfig selects how mutations on one medication are serialized
type LockConfig struct {
	// Backend is "local" or "redis"
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
	Wait     time.Duration `mapstructure:"wait"`
}

// ForecastConfig holds the stock thresholds
type ForecastConfig struct {
	LowStockThreshold int `mapstructure:"low_stock_threshold"`
	RestockDays       int `mapstructure:"restock_days"`
	TargetDays        int `mapstructure:"target_days"`
}

// SweepConfig schedules the periodic restock sweep
type SweepConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig configures the OTLP/HTTP exporter
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medicamenta.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medicamenta.yaml")
	}
	configPath = expandPath(configPath)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "failed to read config")
		}
	}

	// MEDICAMENTA_SERVER_PORT, MEDICAMENTA_LOCK_REDIS_URL, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for canonical, key := range aliasKeys {
		if val := ResolveEnvWithAliases(canonical); val != "" {
			v.Set(key, val)
		}
	}

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the config file on change and hands every valid result to onChange.
// Invalid edits are reported through onError and otherwise ignored. It is a no-op when
// no config file was found.
func Watch(configPath, dataDir string, onChange func(*Config), onError func(error)) error {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.breaker.enabled", true)
	v.SetDefault("storage.breaker.max_failures", 5)
	v.SetDefault("storage.breaker.open_timeout", 30*time.Second)

	// registered so AutomaticEnv can see them
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.admin_password", "")
	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.token_ttl", 24*time.Hour)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 10.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.wait", 3*time.Second)

	v.SetDefault("forecast.low_stock_threshold", 5)
	v.SetDefault("forecast.restock_days", 7)
	v.SetDefault("forecast.target_days", 30)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.spec", "0 8 * * *")

	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "medicamenta")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medicamenta")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medicamenta")
}

func validate(cfg *Config) error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.ErrConfigInvalid.WithMessage(format, args...)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid("server.port %d out of range", cfg.Server.Port)
	}
	switch cfg.Storage.Backend {
	case "sqlite", "badger":
	default:
		return invalid("storage.backend must be sqlite or badger, got %q", cfg.Storage.Backend)
	}
	switch cfg.Lock.Backend {
	case "local":
	case "redis":
		if cfg.Lock.RedisURL == "" {
			return invalid("lock.redis_url is required for the redis lock backend")
		}
	default:
		return invalid("lock.backend must be local or redis, got %q", cfg.Lock.Backend)
	}
	if cfg.Lock.TTL <= 0 {
		return invalid("lock.ttl must be positive")
	}
	if cfg.Forecast.LowStockThreshold < 0 || cfg.Forecast.RestockDays < 0 || cfg.Forecast.TargetDays <= 0 {
		return invalid("forecast thresholds must be non-negative and target_days positive")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0) {
		return invalid("ratelimit.requests_per_second and ratelimit.burst must be positive")
	}
	if cfg.Sweep.Enabled && strings.TrimSpace(cfg.Sweep.Spec) == "" {
		return invalid("sweep.spec is required when the sweep is enabled")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
