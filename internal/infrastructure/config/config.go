package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	Agent          AgentConfig
	Breaker        BreakerConfig
	SyncJobs       SyncJobsConfig
	Ingest         IngestConfig
	MappingCache   MappingCacheConfig
	Reconciliation ReconciliationConfig
	Scheduler      SchedulerConfig
	Alerting       AlertingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
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

// RedisConfig holds Redis connection settings for the L2 mapping cache
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AgentConfig holds agent health classification settings
type AgentConfig struct {
	// DegradedAfter is the heartbeat age beyond which an agent is degraded
	DegradedAfter time.Duration
	// OfflineAfter is the heartbeat age beyond which an agent is offline
	OfflineAfter time.Duration
	// RequestTimeout is the hard timeout for outbound agent calls
	RequestTimeout time.Duration
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	// VolumeThreshold is the minimum calls in a window before tripping
	VolumeThreshold int
	// FailureThreshold is the failure percentage (0-100) that trips the breaker
	FailureThreshold float64
	// ResetTimeout is how long an open breaker waits before probing
	ResetTimeout time.Duration
	// CallTimeout is the per-call hard timeout counted as a failure
	CallTimeout time.Duration
	// RollingWindow is the statistics window duration
	RollingWindow time.Duration
}

// SyncJobsConfig holds outbound job processor settings
type SyncJobsConfig struct {
	// Concurrency is the number of job workers
	Concurrency int
	// PollInterval is how often pending jobs are polled
	PollInterval time.Duration
	// MaxRetries is the total attempt budget per job
	MaxRetries int
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// CallbackTimeout is how long a dispatched job may await its callback
	CallbackTimeout time.Duration
	// Retention is how long terminal jobs are kept before cleanup
	Retention time.Duration
}

// IngestConfig holds inbound batch settings
type IngestConfig struct {
	// IncrementalBatchLimit is the record ceiling for incremental pushes
	IncrementalBatchLimit int
	// BulkBatchLimit is the record ceiling for bulk pushes
	BulkBatchLimit int
	// FlushChunkSize is the upsert chunk size for staged records
	FlushChunkSize int
}

// MappingCacheConfig holds translation cache settings
type MappingCacheConfig struct {
	// TTL is the per-entry time to live
	TTL time.Duration
	// MaxEntries is the cache capacity (insertion-order eviction)
	MaxEntries int
}

// ReconciliationConfig holds drift detection settings
type ReconciliationConfig struct {
	// LeafRangeSize is the range size at which binary search falls back to
	// item-by-item comparison
	LeafRangeSize int
}

// SchedulerConfig holds the periodic task cadences
type SchedulerConfig struct {
	Enabled                bool
	DriftDetectionInterval time.Duration
	HealthCheckInterval    time.Duration
	DLQCheckInterval       time.Duration
	CallbackReaperInterval time.Duration
	JobCleanupInterval     time.Duration
	EventArchivalInterval  time.Duration
	DLQCleanupInterval     time.Duration
	// DLQRetentionDays is the resolved-entry retention for weekly cleanup
	DLQRetentionDays int
	// EventRetention is the reconciliation event active window
	EventRetention time.Duration
}

// AlertingConfig holds alert delivery settings
type AlertingConfig struct {
	// WebhookURL is the alert webhook endpoint; empty means log-only
	WebhookURL string
	// Timeout is the webhook delivery timeout
	Timeout time.Duration
}

// Load loads configuration from TOML file and environment variables.
/// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g. SYNC_DATABASE_PASSWORD)
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

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
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
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Agent: AgentConfig{
			DegradedAfter:  v.GetDuration("agent.degraded_after"),
			OfflineAfter:   v.GetDuration("agent.offline_after"),
			RequestTimeout: v.GetDuration("agent.request_timeout"),
		},
		Breaker: BreakerConfig{
			VolumeThreshold:  v.GetInt("breaker.volume_threshold"),
			FailureThreshold: v.GetFloat64("breaker.failure_threshold"),
			ResetTimeout:     v.GetDuration("breaker.reset_timeout"),
			CallTimeout:      v.GetDuration("breaker.call_timeout"),
			RollingWindow:    v.GetDuration("breaker.rolling_window"),
		},
		SyncJobs: SyncJobsConfig{
			Concurrency:     v.GetInt("sync_jobs.concurrency"),
			PollInterval:    v.GetDuration("sync_jobs.poll_interval"),
			MaxRetries:      v.GetInt("sync_jobs.max_retries"),
			RetryBaseDelay:  v.GetDuration("sync_jobs.retry_base_delay"),
			CallbackTimeout: v.GetDuration("sync_jobs.callback_timeout"),
			Retention:       v.GetDuration("sync_jobs.retention"),
		},
		Ingest: IngestConfig{
			IncrementalBatchLimit: v.GetInt("ingest.incremental_batch_limit"),
			BulkBatchLimit:        v.GetInt("ingest.bulk_batch_limit"),
			FlushChunkSize:        v.GetInt("ingest.flush_chunk_size"),
		},
		MappingCache: MappingCacheConfig{
			TTL:        v.GetDuration("mapping_cache.ttl"),
			MaxEntries: v.GetInt("mapping_cache.max_entries"),
		},
		Reconciliation: ReconciliationConfig{
			LeafRangeSize: v.GetInt("reconciliation.leaf_range_size"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                v.GetBool("scheduler.enabled"),
			DriftDetectionInterval: v.GetDuration("scheduler.drift_detection_interval"),
			HealthCheckInterval:    v.GetDuration("scheduler.health_check_interval"),
			DLQCheckInterval:       v.GetDuration("scheduler.dlq_check_interval"),
			CallbackReaperInterval: v.GetDuration("scheduler.callback_reaper_interval"),
			JobCleanupInterval:     v.GetDuration("scheduler.job_cleanup_interval"),
			EventArchivalInterval:  v.GetDuration("scheduler.event_archival_interval"),
			DLQCleanupInterval:     v.GetDuration("scheduler.dlq_cleanup_interval"),
			DLQRetentionDays:       v.GetInt("scheduler.dlq_retention_days"),
			EventRetention:         v.GetDuration("scheduler.event_retention"),
		},
		Alerting: AlertingConfig{
			WebhookURL: v.GetString("alerting.webhook_url"),
			Timeout:    v.GetDuration("alerting.timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "agentsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "agentsync"
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
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Agent.DegradedAfter == 0 {
		cfg.Agent.DegradedAfter = 60 * time.Second
	}
	if cfg.Agent.OfflineAfter == 0 {
		cfg.Agent.OfflineAfter = 300 * time.Second
	}
	if cfg.Agent.RequestTimeout == 0 {
		cfg.Agent.RequestTimeout = 30 * time.Second
	}
	if cfg.Breaker.VolumeThreshold == 0 {
		cfg.Breaker.VolumeThreshold = 5
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 50
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = 60 * time.Second
	}
	if cfg.Breaker.CallTimeout == 0 {
		cfg.Breaker.CallTimeout = 30 * time.Second
	}
	if cfg.Breaker.RollingWindow == 0 {
		cfg.Breaker.RollingWindow = 60 * time.Second
	}
	if cfg.SyncJobs.Concurrency == 0 {
		cfg.SyncJobs.Concurrency = 5
	}
	if cfg.SyncJobs.PollInterval == 0 {
		cfg.SyncJobs.PollInterval = 5 * time.Second
	}
	if cfg.SyncJobs.MaxRetries == 0 {
		cfg.SyncJobs.MaxRetries = 5
	}
	if cfg.SyncJobs.RetryBaseDelay == 0 {
		cfg.SyncJobs.RetryBaseDelay = time.Minute
	}
	if cfg.SyncJobs.CallbackTimeout == 0 {
		cfg.SyncJobs.CallbackTimeout = 30 * time.Minute
	}
	if cfg.SyncJobs.Retention == 0 {
		cfg.SyncJobs.Retention = 7 * 24 * time.Hour
	}
	if cfg.Ingest.IncrementalBatchLimit == 0 {
		cfg.Ingest.IncrementalBatchLimit = 500
	}
	if cfg.Ingest.BulkBatchLimit == 0 {
		cfg.Ingest.BulkBatchLimit = 5000
	}
	if cfg.Ingest.FlushChunkSize == 0 {
		cfg.Ingest.FlushChunkSize = 100
	}
	if cfg.MappingCache.TTL == 0 {
		cfg.MappingCache.TTL = 5 * time.Minute
	}
	if cfg.MappingCache.MaxEntries == 0 {
		cfg.MappingCache.MaxEntries = 10000
	}
	if cfg.Reconciliation.LeafRangeSize == 0 {
		cfg.Reconciliation.LeafRangeSize = 10
	}
	if cfg.Scheduler.DriftDetectionInterval == 0 {
		cfg.Scheduler.DriftDetectionInterval = time.Hour
	}
	if cfg.Scheduler.HealthCheckInterval == 0 {
		cfg.Scheduler.HealthCheckInterval = 5 * time.Minute
	}
	if cfg.Scheduler.DLQCheckInterval == 0 {
		cfg.Scheduler.DLQCheckInterval = 15 * time.Minute
	}
	if cfg.Scheduler.CallbackReaperInterval == 0 {
		cfg.Scheduler.CallbackReaperInterval = 10 * time.Minute
	}
	if cfg.Scheduler.JobCleanupInterval == 0 {
		cfg.Scheduler.JobCleanupInterval = 24 * time.Hour
	}
	if cfg.Scheduler.EventArchivalInterval == 0 {
		cfg.Scheduler.EventArchivalInterval = 7 * 24 * time.Hour
	}
	if cfg.Scheduler.DLQCleanupInterval == 0 {
		cfg.Scheduler.DLQCleanupInterval = 7 * 24 * time.Hour
	}
	if cfg.Scheduler.DLQRetentionDays == 0 {
		cfg.Scheduler.DLQRetentionDays = 30
	}
	if cfg.Scheduler.EventRetention == 0 {
		cfg.Scheduler.EventRetention = 90 * 24 * time.Hour
	}
	if cfg.Alerting.Timeout == 0 {
		cfg.Alerting.Timeout = 10 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Breaker.FailureThreshold < 0 || c.Breaker.FailureThreshold > 100 {
		return fmt.Errorf("breaker.failure_threshold must be between 0 and 100, got %f", c.Breaker.FailureThreshold)
	}
	if c.Agent.DegradedAfter >= c.Agent.OfflineAfter {
		return fmt.Errorf("agent.degraded_after must be shorter than agent.offline_after")
	}
	if c.Ingest.IncrementalBatchLimit > c.Ingest.BulkBatchLimit {
		return fmt.Errorf("ingest.incremental_batch_limit cannot exceed ingest.bulk_batch_limit")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
