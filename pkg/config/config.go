package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Signal struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	Presence struct {
		ChannelTTL    time.Duration `yaml:"channel_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		Shards        int           `yaml:"shards"`
	} `yaml:"presence"`

	Voice struct {
		ActiveWindow   time.Duration `yaml:"active_window"`
		MailboxIdleTTL time.Duration `yaml:"mailbox_idle_ttl"`
		PruneInterval  time.Duration `yaml:"prune_interval"`
	} `yaml:"voice"`

	Chat struct {
		HistoryLimit    int           `yaml:"history_limit"`
		ChannelCacheTTL time.Duration `yaml:"channel_cache_ttl"`
		DefaultChannel  struct {
			Name        string `yaml:"name"`
			Icon        string `yaml:"icon"`
			Description string `yaml:"description"`
		} `yaml:"default_channel"`
	} `yaml:"chat"`

	Storage struct {
		Driver     string `yaml:"driver"` // sqlite | memory
		SQLitePath string `yaml:"sqlite_path"`
		Retry      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
		CircuitBreaker struct {
			MaxFailures  int           `yaml:"max_failures"`
			ResetTimeout time.Duration `yaml:"reset_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"storage"`

	Media struct {
		Dir       string `yaml:"dir"`
		URLPrefix string `yaml:"url_prefix"`
		MaxBytes  int64  `yaml:"max_bytes"`
	} `yaml:"media"`

	Backup struct {
		Enabled            bool          `yaml:"enabled"`
		Dir                string        `yaml:"dir"`
		Interval           time.Duration `yaml:"interval"`
		RetentionDays      int           `yaml:"retention_days"`
		MessagesPerChannel int           `yaml:"messages_per_channel"`
		RestoreOnEmpty     bool          `yaml:"restore_on_empty"`
	} `yaml:"backup"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled"`
		MetricsPath         string        `yaml:"metrics_path"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Session struct {
		Identity string        `yaml:"identity"` // session | origin | nick
		Secret   string        `yaml:"secret"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"session"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxConcurrent        int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
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

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}

	// Presence and voice
	if c.Presence.ChannelTTL <= 0 {
		return fmt.Errorf("presence.channel_ttl must be > 0")
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweep_interval must be > 0")
	}
	if c.Presence.Shards <= 0 || c.Presence.Shards&(c.Presence.Shards-1) != 0 {
		return fmt.Errorf("presence.shards must be a power of two")
	}
	if c.Voice.ActiveWindow <= 0 {
		return fmt.Errorf("voice.active_window must be > 0")
	}
	if c.Voice.MailboxIdleTTL < c.Voice.ActiveWindow {
		return fmt.Errorf("voice.mailbox_idle_ttl must be >= voice.active_window")
	}
	if c.Voice.PruneInterval <= 0 {
		return fmt.Errorf("voice.prune_interval must be > 0")
	}

	// Chat
	if c.Chat.HistoryLimit <= 0 || c.Chat.HistoryLimit > 500 {
		return fmt.Errorf("chat.history_limit must be in (0, 500]")
	}
	if c.Chat.ChannelCacheTTL < 0 {
		return fmt.Errorf("chat.channel_cache_ttl must be >= 0")
	}
	if strings.TrimSpace(c.Chat.DefaultChannel.Name) == "" {
		return fmt.Errorf("chat.default_channel.name must not be empty")
	}

	// Storage
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty when storage.driver=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.Retry.MaxAttempts < 1 {
		return fmt.Errorf("storage.retry.max_attempts must be >= 1")
	}
	if c.Storage.CircuitBreaker.MaxFailures < 1 {
		return fmt.Errorf("storage.circuit_breaker.max_failures must be >= 1")
	}

	// Media
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("media.max_bytes must be > 0")
	}
	if c.Media.Dir == "" || c.Media.URLPrefix == "" {
		return fmt.Errorf("media.dir and media.url_prefix must not be empty")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays < 1 {
			return fmt.Errorf("backup.retention_days must be >= 1")
		}
		if c.Backup.MessagesPerChannel < 1 {
			return fmt.Errorf("backup.messages_per_channel must be >= 1")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
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

	// Session
	switch c.Session.Identity {
	case "session":
		if c.Session.Secret == "" {
			return fmt.Errorf("session.secret must not be empty when session.identity=session")
		}
		if c.Session.TTL <= 0 {
			return fmt.Errorf("session.ttl must be > 0")
		}
	case "origin", "nick":
	default:
		return fmt.Errorf("session.identity must be session, origin or nick, got %q", c.Session.Identity)
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
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads a .env file if present, then the YAML config (defaults when the
// file is missing), then HUDDLE_* environment overrides.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

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

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.ShutdownTimeout = 15 * time.Second

	cfg.Presence.ChannelTTL = 15 * time.Second
	cfg.Presence.SweepInterval = 30 * time.Second
	cfg.Presence.Shards = 32

	cfg.Voice.ActiveWindow = 20 * time.Second
	cfg.Voice.MailboxIdleTTL = 2 * time.Minute
	cfg.Voice.PruneInterval = time.Minute

	cfg.Chat.HistoryLimit = 50
	cfg.Chat.ChannelCacheTTL = 5 * time.Second
	cfg.Chat.DefaultChannel.Name = "General"
	cfg.Chat.DefaultChannel.Icon = "💬"
	cfg.Chat.DefaultChannel.Description = "General chat"

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = "data/huddle.db"
	cfg.Storage.Retry.MaxAttempts = 3
	cfg.Storage.Retry.InitialDelay = 50 * time.Millisecond
	cfg.Storage.Retry.MaxDelay = 500 * time.Millisecond
	cfg.Storage.CircuitBreaker.MaxFailures = 5
	cfg.Storage.CircuitBreaker.ResetTimeout = 30 * time.Second

	cfg.Media.Dir = "data/uploads"
	cfg.Media.URLPrefix = "/uploads"
	cfg.Media.MaxBytes = 10 << 20

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "data/backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.RetentionDays = 7
	cfg.Backup.MessagesPerChannel = 500
	cfg.Backup.RestoreOnEmpty = true

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"
	cfg.Monitoring.HealthCheckInterval = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "huddle"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "huddle:"

	cfg.Session.Identity = "session"
	cfg.Session.Secret = "change-me-in-production"
	cfg.Session.TTL = 12 * time.Hour

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("HUDDLE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("HUDDLE_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("HUDDLE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if driver := os.Getenv("HUDDLE_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("HUDDLE_SQLITE_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if secret := os.Getenv("HUDDLE_SESSION_SECRET"); secret != "" {
		c.Session.Secret = secret
	}
	if mode := os.Getenv("HUDDLE_IDENTITY"); mode != "" {
		c.Session.Identity = mode
	}
	if addr := os.Getenv("HUDDLE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
	if ttl, err := time.ParseDuration(os.Getenv("HUDDLE_PRESENCE_TTL")); err == nil && ttl > 0 {
		c.Presence.ChannelTTL = ttl
	}
	if v, err := strconv.ParseBool(os.Getenv("HUDDLE_RATE_LIMIT")); err == nil {
		c.RateLimiting.Enabled = v
	}
	if v, err := strconv.ParseBool(os.Getenv("HUDDLE_BACKUP")); err == nil {
		c.Backup.Enabled = v
	}
	if dir := os.Getenv("HUDDLE_BACKUP_DIR"); dir != "" {
		c.Backup.Dir = dir
	}
}
