package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage struct {
		Type       string `yaml:"type" default:"duckdb" validate:"oneof=clickhouse duckdb memory"`
		DuckDBPath string `yaml:"duckdb_path" default:"data/jewel.duckdb"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"jewel"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Models struct {
		Dir string `yaml:"dir" default:"models" validate:"required"`
	} `yaml:"models"`
	Gold struct {
		Metal  string `yaml:"metal" default:"gold"`
		Purity string `yaml:"purity" default:"22K"`
		// Lookback bounds the training window; zero trains on the full history.
		Lookback time.Duration `yaml:"lookback"`
	} `yaml:"gold"`
	Training struct {
		StaleAfter   time.Duration `yaml:"stale_after" default:"168h"`
		LockTTL      time.Duration `yaml:"lock_ttl" default:"30m"`
		Timeout      time.Duration `yaml:"timeout" default:"20m"`
		ForestTrees  int           `yaml:"forest_trees" default:"100" validate:"min=1"`
		ForestDepth  int           `yaml:"forest_depth" default:"10" validate:"min=1"`
		ForestWorker int           `yaml:"forest_workers"`
		// retrain endpoint token bucket, per model
		RetrainBurst     float64 `yaml:"retrain_burst" default:"2"`
		RetrainPerMinute float64 `yaml:"retrain_per_minute" default:"1"`
	} `yaml:"training"`
	Trends struct {
		CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
	} `yaml:"trends"`
	Cache struct {
		Type    string        `yaml:"type" default:"memory" validate:"oneof=memory redis layered"`
		MaxSize int           `yaml:"max_size" default:"1000"`
		L1TTL   time.Duration `yaml:"l1_ttl" default:"30s"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"jewel"`
	} `yaml:"redis"`
	Queue struct {
		Type       string        `yaml:"type" default:"memory" validate:"oneof=memory redis"`
		Workers    int           `yaml:"workers" default:"1" validate:"min=1"`
		RetryLimit int           `yaml:"retry_limit" default:"1"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled     bool     `yaml:"enabled"`
		Brokers     []string `yaml:"brokers"`
		Topic       string   `yaml:"topic" default:"jewel.model-events"`
		Compression string   `yaml:"compression" default:"gzip"`
		Consumer    struct {
			// empty group gives each replica its own group so every
			// replica sees every event
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Load reads a YAML file, applies defaults and validates. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("APP_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("STORAGE_TYPE", &c.Storage.Type)
	str("DUCKDB_PATH", &c.Storage.DuckDBPath)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	str("MODEL_DIR", &c.Models.Dir)
	str("CACHE_TYPE", &c.Cache.Type)
	str("QUEUE_TYPE", &c.Queue.Type)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
}

// Validate checks field rules plus the cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Storage.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for clickhouse storage")
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Cache.Type != "memory" || c.Queue.Type == "redis"
}
