// Package config loads service configuration from flags, an optional YAML
// file, a .env file and STUDYLOOP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables; a double underscore
// separates nesting levels, e.g. STUDYLOOP_AUTH__JWT_SECRET.
const EnvPrefix = "STUDYLOOP_"

// DevJWTSecret is the default signing secret. Serving with it logs a warning.
const DevJWTSecret = "dev-only-secret-change-me"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Storage    StorageConfig    `koanf:"storage"`
	Processing ProcessingConfig `koanf:"processing"`
	Auth       AuthConfig       `koanf:"auth"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Cache      CacheConfig      `koanf:"cache"`
	Redis      RedisConfig      `koanf:"redis"`
	Realtime   RealtimeConfig   `koanf:"realtime"`
	Study      StudyConfig      `koanf:"study"`
	Import     ImportConfig     `koanf:"import"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type StorageConfig struct {
	Driver    string `koanf:"driver" validate:"oneof=local gcs"`
	LocalDir  string `koanf:"local_dir" validate:"required_if=Driver local"`
	GCSBucket string `koanf:"gcs_bucket" validate:"required_if=Driver gcs"`
}

type ProcessingConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"required,url"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries int           `koanf:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `koanf:"max_delay" validate:"gtefield=BaseDelay"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

type PipelineConfig struct {
	Token string `koanf:"token"`
}

type CacheConfig struct {
	Driver string        `koanf:"driver" validate:"oneof=memory redis"`
	TTL    time.Duration `koanf:"ttl" validate:"gt=0"`
}

type RedisConfig struct {
	Addr    string `koanf:"addr"`
	Channel string `koanf:"channel"`
}

type RealtimeConfig struct {
	Driver string `koanf:"driver" validate:"oneof=local redis"`
}

type StudyConfig struct {
	ReviewPolicy string `koanf:"review_policy" validate:"oneof=exponential fixed fsrs"`
}

type ImportConfig struct {
	ReposDir      string  `koanf:"repos_dir"`
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gt=0"`
}

type LogConfig struct {
	Mode string `koanf:"mode"`
}

// RegisterFlags defines every configuration key on fs with its default.
// Flag names are the dotted koanf keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")

	fs.String("server.address", ":8080", "HTTP listen address")
	fs.Duration("server.shutdown_timeout", 10*time.Second, "Graceful shutdown timeout")
	fs.StringSlice("server.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"}, "Allowed CORS origins")

	fs.String("database.path", "studyloop.db", "Path to the SQLite database file")

	fs.String("storage.driver", "local", "Object storage driver (local|gcs)")
	fs.String("storage.local_dir", "uploads", "Directory for the local object store")
	fs.String("storage.gcs_bucket", "", "GCS bucket for uploaded materials")

	fs.String("processing.base_url", "http://localhost:8000/api/v1", "Processing API base URL")
	fs.Duration("processing.timeout", 60*time.Second, "Per-request timeout for processing calls")
	fs.Int("processing.max_retries", 3, "Retries for the processing trigger")
	fs.Duration("processing.base_delay", time.Second, "Base retry delay")
	fs.Duration("processing.max_delay", 10*time.Second, "Retry delay cap")

	fs.String("auth.jwt_secret", DevJWTSecret, "HMAC secret for session tokens")
	fs.Duration("auth.token_ttl", 24*time.Hour, "Session token lifetime")

	fs.String("pipeline.token", "", "Shared token the processing pipeline sends on callbacks")

	fs.String("cache.driver", "memory", "Query cache driver (memory|redis)")
	fs.Duration("cache.ttl", 5*time.Minute, "Query cache entry lifetime")

	fs.String("redis.addr", "", "Redis address")
	fs.String("redis.channel", "studyloop:changes", "Redis channel for change events")

	fs.String("realtime.driver", "local", "Change feed driver (local|redis)")

	fs.String("study.review_policy", "exponential", "Review interval policy (exponential|fixed|fsrs)")

	fs.String("import.repos_dir", "repos", "Where git sources are cloned")
	fs.Float64("import.rate_per_second", 2, "Processing triggers per second during import")

	fs.String("log.mode", "development", "Log mode (development|production)")
}

// Load merges flag defaults, the config file, .env and the environment, in
// increasing precedence, with explicitly set flags winning over all of them.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
		if key == "server.cors_origins" {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys nobody else set; changed flags override.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field rules and the cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Cache.Driver == "redis" || c.Realtime.Driver == "redis") && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required when cache or realtime use redis")
	}
	return nil
}
