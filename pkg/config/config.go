package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Hub struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendTimeout    time.Duration `yaml:"send_timeout"`
		SendBuffer     int           `yaml:"send_buffer"`
		MaxMessageSize int64         `yaml:"max_message_size"`
		MaxChatLength  int           `yaml:"max_chat_length"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"hub"`

	Moderation struct {
		SweepInterval     time.Duration `yaml:"sweep_interval"`
		RetryAttempts     int           `yaml:"retry_attempts"`
		RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
		RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	} `yaml:"moderation"`

	Streams struct {
		// PlaybackURLTemplate must contain {stream_key}.
		PlaybackURLTemplate string `yaml:"playback_url_template"`
		IngestChannel       string `yaml:"ingest_channel"`
		IngestToken         string `yaml:"ingest_token"`
	} `yaml:"streams"`

	Storage struct {
		Driver     string `yaml:"driver"` // memory, sqlite, postgres or mysql
		SQLitePath string `yaml:"sqlite_path"`
		Postgres   struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
		MySQL struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
		} `yaml:"mysql"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ChatHistory     int           `yaml:"chat_history"` // memory driver capacity

		Breaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
	} `yaml:"storage"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		Chat struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"chat"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Hub
	if c.Hub.PingInterval <= 0 {
		return fmt.Errorf("hub.ping_interval must be > 0")
	}
	if c.Hub.IdleTimeout <= c.Hub.PingInterval {
		return fmt.Errorf("hub.idle_timeout must be greater than hub.ping_interval")
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be > 0")
	}
	if c.Hub.SendTimeout < 0 {
		return fmt.Errorf("hub.send_timeout must be >= 0")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be > 0")
	}
	if c.Hub.MaxMessageSize <= 0 {
		return fmt.Errorf("hub.max_message_size must be > 0")
	}
	if c.Hub.MaxChatLength <= 0 {
		return fmt.Errorf("hub.max_chat_length must be > 0")
	}

	// Moderation
	if c.Moderation.SweepInterval <= 0 {
		return fmt.Errorf("moderation.sweep_interval must be > 0")
	}
	if c.Moderation.RetryAttempts < 1 {
		return fmt.Errorf("moderation.retry_attempts must be >= 1")
	}

	// Streams
	if c.Streams.PlaybackURLTemplate != "" && !strings.Contains(c.Streams.PlaybackURLTemplate, "{stream_key}") {
		return fmt.Errorf("streams.playback_url_template must contain {stream_key}")
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty when storage.driver=sqlite")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.DBName == "" {
			return fmt.Errorf("storage.postgres.host and dbname must be set when storage.driver=postgres")
		}
	case "mysql":
		if c.Storage.MySQL.Host == "" || c.Storage.MySQL.DBName == "" {
			return fmt.Errorf("storage.mysql.host and dbname must be set when storage.driver=mysql")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite, postgres or mysql, got %q", c.Storage.Driver)
	}
	if c.Storage.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("storage.breaker.failure_threshold must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.Chat.MessagesPerSecond <= 0 {
		return fmt.Errorf("rate_limiting.chat.messages_per_second must be > 0")
	}
	if c.RateLimiting.Chat.Burst <= 0 {
		return fmt.Errorf("rate_limiting.chat.burst must be > 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Hub.PingInterval = 30 * time.Second
	cfg.Hub.IdleTimeout = 75 * time.Second
	cfg.Hub.WriteTimeout = 10 * time.Second
	cfg.Hub.SendTimeout = 50 * time.Millisecond
	cfg.Hub.SendBuffer = 256
	cfg.Hub.MaxMessageSize = 16 * 1024
	cfg.Hub.MaxChatLength = 500
	cfg.Hub.AllowedOrigins = []string{"*"}

	cfg.Moderation.SweepInterval = time.Minute
	cfg.Moderation.RetryAttempts = 3
	cfg.Moderation.RetryInitialDelay = 50 * time.Millisecond
	cfg.Moderation.RetryMaxDelay = time.Second

	cfg.Streams.PlaybackURLTemplate = "/live/{stream_key}/index.m3u8"
	cfg.Streams.IngestChannel = "livehub:ingest"

	cfg.Storage.Driver = "memory"
	cfg.Storage.SQLitePath = "livehub.db"
	cfg.Storage.Postgres.Port = 5432
	cfg.Storage.Postgres.SSLMode = "disable"
	cfg.Storage.MySQL.Port = 3306
	cfg.Storage.MaxOpenConns = 20
	cfg.Storage.MaxIdleConns = 5
	cfg.Storage.ConnMaxLifetime = 30 * time.Minute
	cfg.Storage.ChatHistory = 10000
	cfg.Storage.Breaker.FailureThreshold = 5
	cfg.Storage.Breaker.OpenTimeout = 30 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1
	cfg.Tracing.Environment = "development"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 12 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.Chat.MessagesPerSecond = 2
	cfg.RateLimiting.Chat.Burst = 5

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("LIVEHUB_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("LIVEHUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("LIVEHUB_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if token := os.Getenv("LIVEHUB_INGEST_TOKEN"); token != "" {
		c.Streams.IngestToken = token
	}
	if driver := os.Getenv("LIVEHUB_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("LIVEHUB_SQLITE_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if host := os.Getenv("LIVEHUB_POSTGRES_HOST"); host != "" {
		c.Storage.Postgres.Host = host
	}
	if pw := os.Getenv("LIVEHUB_POSTGRES_PASSWORD"); pw != "" {
		c.Storage.Postgres.Password = pw
	}
	if host := os.Getenv("LIVEHUB_MYSQL_HOST"); host != "" {
		c.Storage.MySQL.Host = host
	}
	if pw := os.Getenv("LIVEHUB_MYSQL_PASSWORD"); pw != "" {
		c.Storage.MySQL.Password = pw
	}
	if addr := os.Getenv("LIVEHUB_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LIVEHUB_REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIVEHUB_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = enabled
	}
	if v := os.Getenv("LIVEHUB_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIVEHUB_TRACING_ENABLED: %w", err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}

// Marshal renders the effective configuration, with secrets redacted.
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Auth.JWTSecret != "" {
		redacted.Auth.JWTSecret = "***"
	}
	if redacted.Storage.Postgres.Password != "" {
		redacted.Storage.Postgres.Password = "***"
	}
	if redacted.Storage.MySQL.Password != "" {
		redacted.Storage.MySQL.Password = "***"
	}
	if redacted.Redis.Password != "" {
		redacted.Redis.Password = "***"
	}
	if redacted.Streams.IngestToken != "" {
		redacted.Streams.IngestToken = "***"
	}
	return yaml.Marshal(&redacted)
}
