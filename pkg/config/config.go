package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	applogger "RateGate/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"dev" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
	UserStore   UserStoreConfig  `yaml:"user_store"`
	Redis       RedisConfig      `yaml:"redis"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Remote      RemoteConfig     `yaml:"remote"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Upstream    UpstreamConfig   `yaml:"upstream"`
	Admin       AdminConfig      `yaml:"admin"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type LoggingConfig struct {
	applogger.Config `yaml:",inline"`
	Collector        struct {
		Enabled        bool          `yaml:"enabled"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collector"`
}

type RateLimitConfig struct {
	Policy     string   `yaml:"policy" default:"static" validate:"oneof=static user"`
	RefillMode string   `yaml:"refill_mode" default:"greedy" validate:"oneof=greedy intervally"`
	SkipPaths  []string `yaml:"skip_paths" default:"[\"/metrics\",\"/healthz\",\"/admin\"]"`
	Static     struct {
		Capacity     int64         `yaml:"capacity" default:"5" validate:"gt=0"`
		RefillTokens int64         `yaml:"refill_tokens" default:"5" validate:"gt=0"`
		RefillPeriod time.Duration `yaml:"refill_period" default:"1m" validate:"gt=0"`
	} `yaml:"static"`
	User struct {
		RefillPeriod time.Duration `yaml:"refill_period" default:"1m" validate:"gt=0"`
	} `yaml:"user"`
	Key struct {
		Strategy   string `yaml:"strategy" default:"ip" validate:"oneof=ip header"`
		Header     string `yaml:"header" default:"X-Tenant"`
		PathPrefix string `yaml:"path_prefix" default:"/v1"`
		TrustProxy bool   `yaml:"trust_proxy"`
	} `yaml:"key"`
	Cache struct {
		FlushInterval time.Duration `yaml:"flush_interval" default:"10m" validate:"gt=0"`
		InitialDelay  time.Duration `yaml:"initial_delay" default:"10s" validate:"gte=0"`
	} `yaml:"cache"`
}

type UserStoreConfig struct {
	Backend string           `yaml:"backend" default:"memory" validate:"oneof=memory redis clickhouse http"`
	Seed    map[string]int64 `yaml:"seed"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"rategate"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"rategate"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	Table            string        `yaml:"table" default:"user_limits"`
	UseHTTP          bool          `yaml:"use_http"`
	InitSchema       bool          `yaml:"init_schema"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"2s"`
	APIKey  string        `yaml:"api_key"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic" default:"rategate.limit-changes"`
	GroupID     string   `yaml:"group_id" default:"rategate"`
	LogTopic    string   `yaml:"log_topic" default:"rategate.logs"`
	Compression string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
		RetryMax    int           `yaml:"retry_max" default:"3"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic    string        `yaml:"dlq_topic"`
	} `yaml:"consumer"`
}

type UpstreamConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// AdminConfig controls the admin API. Outside the dev environment an
// enabled admin API must carry a token.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Token   string `yaml:"token"`
}

var validate = validator.New()

// Load reads a YAML file over struct defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over struct defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("RATEGATE_POLICY"); v != "" {
		c.RateLimit.Policy = v
	}
	if v := getenv("USER_STORE_BACKEND"); v != "" {
		c.UserStore.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("UPSTREAM_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate runs tag validation plus cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.UserStore.Backend {
	case "http":
		if c.Remote.BaseURL == "" {
			return errors.New("remote.base_url is required for user_store.backend=http")
		}
	case "redis":
		if _, _, err := net.SplitHostPort(c.Redis.Addr); err != nil {
			return fmt.Errorf("redis.addr: %w", err)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka.enabled")
	}
	if c.Admin.Enabled && c.Admin.Token == "" && c.Environment != "dev" {
		return fmt.Errorf("admin.token is required when admin.enabled outside dev (environment=%s)", c.Environment)
	}
	for userID, limit := range c.UserStore.Seed {
		if limit <= 0 {
			return fmt.Errorf("user_store.seed[%s]: limit must be > 0", userID)
		}
	}
	return nil
}

// RedisHostPort splits Redis.Addr.
func (c *Config) RedisHostPort() (string, int) {
	host, port, err := net.SplitHostPort(c.Redis.Addr)
	if err != nil {
		return c.Redis.Addr, 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
