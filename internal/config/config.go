package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Remote drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	FeedPostgres   = "postgres"
	FeedKafka      = "kafka"
	FeedMemory     = "memory"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Push     PushConfig     `yaml:"push"`
	Release  ReleaseConfig  `yaml:"release"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for the change topic
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// RemoteConfig selects the remote data service implementation
type RemoteConfig struct {
	Driver         string        `yaml:"driver"`
	ChangeFeed     string        `yaml:"change_feed"`
	NotifyChannel  string        `yaml:"notify_channel"`
	Migrate        bool          `yaml:"migrate"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// SyncConfig holds Sync Manager configuration
type SyncConfig struct {
	LoadTimeout time.Duration `yaml:"load_timeout"`
	EventBuffer int           `yaml:"event_buffer"`
	Enabled     bool          `yaml:"enabled"`
}

// PushConfig holds write-through queue configuration
type PushConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ReleaseConfig holds the scheduled invite release check configuration
type ReleaseConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// SnapshotConfig holds local state persistence configuration
type SnapshotConfig struct {
	DeviceID string        `yaml:"device_id"`
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
	Enabled  bool          `yaml:"enabled"`
}

// SessionConfig bootstraps the signed-in identity and active team when no
// snapshot exists yet
type SessionConfig struct {
	Email  string `yaml:"email"`
	Phone  string `yaml:"phone"`
	TeamID string `yaml:"team_id"`
}

// Load reads configuration from a YAML file. Variables from a .env file in
// the working directory, when present, are exported before expansion.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations applyDefaults cannot repair
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}
	switch c.Remote.ChangeFeed {
	case FeedPostgres:
		if c.Remote.Driver != DriverPostgres {
			return fmt.Errorf("change feed %q requires the postgres driver", c.Remote.ChangeFeed)
		}
	case FeedMemory:
		if c.Remote.Driver != DriverMemory {
			return fmt.Errorf("change feed %q requires the memory driver", c.Remote.ChangeFeed)
		}
	case FeedKafka:
		if !c.Kafka.Enabled {
			return errors.New("change feed kafka requires kafka.enabled")
		}
	default:
		return fmt.Errorf("unknown change feed %q", c.Remote.ChangeFeed)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "roster-changes"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "roster-sync"
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Remote defaults
	if c.Remote.Driver == "" {
		c.Remote.Driver = DriverPostgres
	}
	if c.Remote.ChangeFeed == "" {
		c.Remote.ChangeFeed = FeedPostgres
		if c.Remote.Driver == DriverMemory {
			c.Remote.ChangeFeed = FeedMemory
		}
	}
	if c.Remote.NotifyChannel == "" {
		c.Remote.NotifyChannel = "roster_changes"
	}
	if c.Remote.ReconnectDelay == 0 {
		c.Remote.ReconnectDelay = 2 * time.Second
	}

	// Sync defaults
	if c.Sync.LoadTimeout == 0 {
		c.Sync.LoadTimeout = 30 * time.Second
	}
	if c.Sync.EventBuffer == 0 {
		c.Sync.EventBuffer = 256
	}

	// Push defaults
	if c.Push.QueueSize == 0 {
		c.Push.QueueSize = 512
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = 10 * time.Second
	}

	// Release check defaults
	if c.Release.Interval == 0 {
		c.Release.Interval = 1 * time.Minute
	}

	// Snapshot defaults
	if c.Snapshot.DeviceID == "" {
		c.Snapshot.DeviceID = "default"
	}
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = 15 * time.Second
	}
	if c.Snapshot.TTL == 0 {
		c.Snapshot.TTL = 30 * 24 * time.Hour
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	cfg.Release.Enabled = true
	cfg.Snapshot.Enabled = true
	return cfg
}
