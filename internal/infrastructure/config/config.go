package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Store     StoreConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Optimizer OptimizerConfig
	Media     MediaConfig
	Deploy    DeployConfig
	CDN       CDNConfig
	HTTP      HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// StoreConfig identifies the generated storefront
type StoreConfig struct {
	Name    string // display name rendered into pages and SEO tags
	BaseURL string // canonical base URL of the generated store
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds catalog store connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN builds the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings for the shared cache tier
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds cache layer settings
type CacheConfig struct {
	MemoryMaxEntries int           // L1 capacity
	MemoryTTL        time.Duration // L1 entry lifetime
	RedisTTL         time.Duration // L2 entry lifetime
	BadgerPath       string        // L3 directory, empty = in-memory
	BadgerTTL        time.Duration // L3 entry lifetime, 0 = no expiry
}

// QueueConfig holds generation queue settings
type QueueConfig struct {
	Workers        int           // bounded worker concurrency
	Capacity       int           // queue buffer size
	JobTimeout     time.Duration // per-job overall budget
	CallTimeout    time.Duration // per network call budget
	RetryAttempts  int           // max attempts for retryable stage errors
	RetryBaseDelay time.Duration // initial backoff delay
	JobRetention   time.Duration // how long terminal jobs stay queryable
}

// OptimizerConfig holds asset optimization worker settings. The variant
// matrix itself (formats, breakpoints, quality) travels with each
// request; these are process-level knobs.
type OptimizerConfig struct {
	Workers   int // transcoding concurrency
	BatchSize int // assets per batch
}

// MediaConfig holds the external transcoding backend settings
type MediaConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// DeployConfig holds deployment gateway settings
type DeployConfig struct {
	TargetConcurrency int               // per-target-type concurrency cap
	VerifyTimeout     time.Duration     // post-upload health check budget
	BreakerThreshold  int               // consecutive failures before the breaker opens
	BreakerCooldown   time.Duration     // open duration before half-open
	Credentials       map[string]string // credentials-reference -> secret
}

// CDNConfig holds content-distribution settings (any S3-compatible store)
type CDNConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string // base URL assets are served from

	// DistributionID names the CloudFront distribution fronting the
	// bucket; empty when the bucket endpoint is served directly.
	DistributionID string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with STOREGEN_ prefix (e.g. STOREGEN_REDIS_HOST)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STOREGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Store: StoreConfig{
			Name:    v.GetString("store.name"),
			BaseURL: v.GetString("store.base_url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			MemoryMaxEntries: v.GetInt("cache.memory_max_entries"),
			MemoryTTL:        v.GetDuration("cache.memory_ttl"),
			RedisTTL:         v.GetDuration("cache.redis_ttl"),
			BadgerPath:       v.GetString("cache.badger_path"),
			BadgerTTL:        v.GetDuration("cache.badger_ttl"),
		},
		Queue: QueueConfig{
			Workers:        v.GetInt("queue.workers"),
			Capacity:       v.GetInt("queue.capacity"),
			JobTimeout:     v.GetDuration("queue.job_timeout"),
			CallTimeout:    v.GetDuration("queue.call_timeout"),
			RetryAttempts:  v.GetInt("queue.retry_attempts"),
			RetryBaseDelay: v.GetDuration("queue.retry_base_delay"),
			JobRetention:   v.GetDuration("queue.job_retention"),
		},
		Optimizer: OptimizerConfig{
			Workers:   v.GetInt("optimizer.workers"),
			BatchSize: v.GetInt("optimizer.batch_size"),
		},
		Media: MediaConfig{
			Endpoint: v.GetString("media.endpoint"),
			APIKey:   v.GetString("media.api_key"),
			Timeout:  v.GetDuration("media.timeout"),
		},
		Deploy: DeployConfig{
			TargetConcurrency: v.GetInt("deploy.target_concurrency"),
			VerifyTimeout:     v.GetDuration("deploy.verify_timeout"),
			BreakerThreshold:  v.GetInt("deploy.breaker_threshold"),
			BreakerCooldown:   v.GetDuration("deploy.breaker_cooldown"),
			Credentials:       v.GetStringMapString("deploy.credentials"),
		},
		CDN: CDNConfig{
			Endpoint:      v.GetString("cdn.endpoint"),
			Region:        v.GetString("cdn.region"),
			Bucket:        v.GetString("cdn.bucket"),
			AccessKey:     v.GetString("cdn.access_key"),
			SecretKey:     v.GetString("cdn.secret_key"),
			UsePathStyle:   v.GetBool("cdn.use_path_style"),
			PublicBaseURL:  v.GetString("cdn.public_base_url"),
			DistributionID: v.GetString("cdn.distribution_id"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storegen"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Store.Name == "" {
		cfg.Store.Name = cfg.App.Name
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Cache.MemoryMaxEntries == 0 {
		cfg.Cache.MemoryMaxEntries = 10000
	}
	if cfg.Cache.MemoryTTL == 0 {
		cfg.Cache.MemoryTTL = 5 * time.Minute
	}
	if cfg.Cache.RedisTTL == 0 {
		cfg.Cache.RedisTTL = time.Hour
	}
	if cfg.Cache.BadgerTTL == 0 {
		cfg.Cache.BadgerTTL = 7 * 24 * time.Hour
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 100
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 5 * time.Minute
	}
	if cfg.Queue.CallTimeout == 0 {
		cfg.Queue.CallTimeout = 30 * time.Second
	}
	if cfg.Queue.RetryAttempts == 0 {
		cfg.Queue.RetryAttempts = 3
	}
	if cfg.Queue.RetryBaseDelay == 0 {
		cfg.Queue.RetryBaseDelay = time.Second
	}
	if cfg.Queue.JobRetention == 0 {
		cfg.Queue.JobRetention = 24 * time.Hour
	}
	if cfg.Optimizer.Workers == 0 {
		cfg.Optimizer.Workers = 8
	}
	if cfg.Optimizer.BatchSize == 0 {
		cfg.Optimizer.BatchSize = 16
	}
	if cfg.Deploy.TargetConcurrency == 0 {
		cfg.Deploy.TargetConcurrency = 3
	}
	if cfg.Deploy.VerifyTimeout == 0 {
		cfg.Deploy.VerifyTimeout = 15 * time.Second
	}
	if cfg.Deploy.BreakerThreshold == 0 {
		cfg.Deploy.BreakerThreshold = 5
	}
	if cfg.Deploy.BreakerCooldown == 0 {
		cfg.Deploy.BreakerCooldown = 30 * time.Second
	}
	if cfg.CDN.Region == "" {
		cfg.CDN.Region = "us-east-1"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.CallTimeout > c.Queue.JobTimeout {
		return fmt.Errorf("queue.call_timeout cannot exceed queue.job_timeout")
	}
	if c.Optimizer.Workers < 1 {
		return fmt.Errorf("optimizer.workers must be at least 1")
	}
	if c.Optimizer.BatchSize < 1 {
		return fmt.Errorf("optimizer.batch_size must be at least 1")
	}
	if c.Deploy.BreakerThreshold < 1 {
		return fmt.Errorf("deploy.breaker_threshold must be at least 1")
	}
	return nil
}
