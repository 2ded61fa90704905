package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	defaultMaxSendFailures = 2
)

// Dispatch modes
const (
	DispatchModeDirect = "direct"
	DispatchModeQueue  = "queue"
)

// Notify providers
const (
	NotifyProviderLoops = "loops"
	NotifyProviderSMTP  = "smtp"
	NotifyProviderNoop  = "noop"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Notify     NotifyConfig     `yaml:"notify"`
	Lease      LeaseConfig      `yaml:"lease"`
	Balance    BalanceConfig    `yaml:"balance"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CronSecret      string        `yaml:"cron_secret"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
	TimeFormat   string `yaml:"time_format"`
}

// ReconcilerConfig controls the tick loop
type ReconcilerConfig struct {
	StalenessWindow time.Duration `yaml:"staleness_window"`
	Concurrency     int           `yaml:"concurrency"`
	BatchLimit      int           `yaml:"batch_limit"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	NotifyTimeout   time.Duration `yaml:"notify_timeout"`
	MaxSendFailures *int          `yaml:"max_send_failures"` // 0 disables re-arming
	Schedule        string        `yaml:"schedule"`
}

// SendFailureCap is max_send_failures, or the default when it is unset
func (r ReconcilerConfig) SendFailureCap() int {
	if r.MaxSendFailures == nil {
		return defaultMaxSendFailures
	}
	return *r.MaxSendFailures
}

// DispatchConfig configures the outbound generation webhook
type DispatchConfig struct {
	Mode          string        `yaml:"mode"`
	WebhookURL    string        `yaml:"webhook_url"`
	SecretKey     string        `yaml:"secret_key"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// NotifyConfig selects and configures the transactional email provider
type NotifyConfig struct {
	Provider  string              `yaml:"provider"`
	Loops     LoopsConfig         `yaml:"loops"`
	SMTP      SMTPConfig          `yaml:"smtp"`
	Templates NotifyTemplates     `yaml:"templates"`
	Messages  map[string]Template `yaml:"messages"`
}

// LoopsConfig holds the Loops transactional API settings
type LoopsConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SMTPConfig holds SMTP delivery settings
type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// NotifyTemplates maps each notification kind to a provider template id
type NotifyTemplates struct {
	FullyReady     string `yaml:"fully_ready"`
	PartiallyReady string `yaml:"partially_ready"`
	NoneReady      string `yaml:"none_ready"`
	Forced         string `yaml:"forced"`
}

// Template is a subject/body pair rendered by the SMTP provider
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// LeaseConfig configures the cross-instance tick lease
type LeaseConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// BalanceConfig configures the daily balance reset
type BalanceConfig struct {
	DailyResetAmount   int    `yaml:"daily_reset_amount"`
	DailyResetSchedule string `yaml:"daily_reset_schedule"`
}

// WorkerConfig holds dispatch worker configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetch_count"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, then applies .env and
// environment overrides for secrets and fills defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	config.applyEnvOverrides()
	config.ApplyDefaults()

	return &config, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
		{"DISPATCH_SECRET_KEY", &c.Dispatch.SecretKey},
		{"DISPATCH_WEBHOOK_URL", &c.Dispatch.WebhookURL},
		{"LOOPS_API_KEY", &c.Notify.Loops.APIKey},
		{"SMTP_PASSWORD", &c.Notify.SMTP.Password},
		{"CRON_SECRET", &c.Server.CronSecret},
		{"REDIS_URL", &c.Lease.RedisURL},
	}

	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.target = v
		}
	}
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	if c.Reconciler.StalenessWindow == 0 {
		c.Reconciler.StalenessWindow = 25 * time.Minute
	}
	if c.Reconciler.Concurrency == 0 {
		c.Reconciler.Concurrency = 4
	}
	if c.Reconciler.BatchLimit == 0 {
		c.Reconciler.BatchLimit = 500
	}
	if c.Reconciler.TxTimeout == 0 {
		c.Reconciler.TxTimeout = 10 * time.Second
	}
	if c.Reconciler.DispatchTimeout == 0 {
		c.Reconciler.DispatchTimeout = 15 * time.Second
	}
	if c.Reconciler.NotifyTimeout == 0 {
		c.Reconciler.NotifyTimeout = 10 * time.Second
	}
	if c.Reconciler.MaxSendFailures == nil {
		n := defaultMaxSendFailures
		c.Reconciler.MaxSendFailures = &n
	}
	if c.Reconciler.Schedule == "" {
		c.Reconciler.Schedule = "@every 5m"
	}

	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchModeDirect
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = 15 * time.Second
	}
	if c.Dispatch.RatePerSecond == 0 {
		c.Dispatch.RatePerSecond = 5
	}
	if c.Dispatch.Burst == 0 {
		c.Dispatch.Burst = 1
	}

	if c.Notify.Provider == "" {
		c.Notify.Provider = NotifyProviderNoop
	}
	if c.Notify.Loops.BaseURL == "" {
		c.Notify.Loops.BaseURL = "https://app.loops.so"
	}
	if c.Notify.Loops.Timeout == 0 {
		c.Notify.Loops.Timeout = 10 * time.Second
	}

	if c.Lease.Key == "" {
		c.Lease.Key = "batch-reconciler:tick"
	}
	if c.Lease.TTL == 0 {
		c.Lease.TTL = 5 * time.Minute
	}

	if c.Balance.DailyResetAmount == 0 {
		c.Balance.DailyResetAmount = 30
	}
	if c.Balance.DailyResetSchedule == "" {
		c.Balance.DailyResetSchedule = "0 0 * * *"
	}

	if c.Worker.PrefetchCount == 0 {
		c.Worker.PrefetchCount = c.Worker.Concurrency
	}
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateWebhook() error {
	if c.Dispatch.WebhookURL == "" {
		return fmt.Errorf("dispatch webhook_url is required")
	}

	u, err := url.Parse(c.Dispatch.WebhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid dispatch webhook_url: %q", c.Dispatch.WebhookURL)
	}

	if c.Dispatch.SecretKey == "" {
		return fmt.Errorf("dispatch secret_key is required")
	}

	if c.Dispatch.RatePerSecond < 0 || c.Dispatch.Burst < 0 {
		return fmt.Errorf("dispatch rate_per_second and burst must not be negative")
	}

	return nil
}

// ValidateReconcilerConfig checks the reconciler service configuration
func (c *Config) ValidateReconcilerConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	r := c.Reconciler
	if r.StalenessWindow <= 0 {
		return fmt.Errorf("reconciler staleness_window must be greater than 0")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("reconciler concurrency must be greater than 0")
	}
	if r.BatchLimit <= 0 {
		return fmt.Errorf("reconciler batch_limit must be greater than 0")
	}
	if r.TxTimeout <= 0 || r.DispatchTimeout <= 0 || r.NotifyTimeout <= 0 {
		return fmt.Errorf("reconciler timeouts must be greater than 0")
	}
	if r.SendFailureCap() < 0 {
		return fmt.Errorf("reconciler max_send_failures must not be negative")
	}

	switch c.Dispatch.Mode {
	case DispatchModeDirect:
		if err := c.validateWebhook(); err != nil {
			return err
		}
	case DispatchModeQueue:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid dispatch mode: %q (must be %q or %q)", c.Dispatch.Mode, DispatchModeDirect, DispatchModeQueue)
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	if c.Lease.Enabled {
		if c.Lease.RedisURL == "" {
			return fmt.Errorf("lease redis_url is required when lease is enabled")
		}
		if c.Lease.TTL <= 0 {
			return fmt.Errorf("lease ttl must be greater than 0")
		}
	}

	if c.Balance.DailyResetAmount < 0 {
		return fmt.Errorf("balance daily_reset_amount must not be negative")
	}

	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Provider {
	case NotifyProviderNoop:
		return nil
	case NotifyProviderLoops:
		if c.Notify.Loops.APIKey == "" {
			return fmt.Errorf("notify loops api_key is required")
		}
	case NotifyProviderSMTP:
		if c.Notify.SMTP.Host == "" {
			return fmt.Errorf("notify smtp host is required")
		}
		if c.Notify.SMTP.Port < MinPort || c.Notify.SMTP.Port > MaxPort {
			return fmt.Errorf("invalid smtp port: %d (must be between %d and %d)", c.Notify.SMTP.Port, MinPort, MaxPort)
		}
		if c.Notify.SMTP.FromEmail == "" {
			return fmt.Errorf("notify smtp from_email is required")
		}
	default:
		return fmt.Errorf("invalid notify provider: %q", c.Notify.Provider)
	}

	t := c.Notify.Templates
	for name, id := range map[string]string{
		"fully_ready":     t.FullyReady,
		"partially_ready": t.PartiallyReady,
		"none_ready":      t.NoneReady,
		"forced":          t.Forced,
	} {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("notify template %s is required", name)
		}
	}

	return nil
}

// ValidateWorkerConfig checks the dispatch worker configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateWebhook(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount <= 0 {
		return fmt.Errorf("worker prefetch_count must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Reconciler.SendFailureCap() < 0 {
		return fmt.Errorf("reconciler max_send_failures must not be negative")
	}

	return nil
}
