package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/batch-reconciler/internal/balance"
	"github.com/cuongbtq/batch-reconciler/internal/config"
	"github.com/cuongbtq/batch-reconciler/internal/dispatch"
	"github.com/cuongbtq/batch-reconciler/internal/lease"
	"github.com/cuongbtq/batch-reconciler/internal/ledger"
	"github.com/cuongbtq/batch-reconciler/internal/notify"
	"github.com/cuongbtq/batch-reconciler/internal/reconciler"
	"github.com/cuongbtq/batch-reconciler/shared/logger"
	"github.com/cuongbtq/batch-reconciler/shared/postgresql"
	"github.com/cuongbtq/batch-reconciler/shared/rabbitmq"
)

// Services is everything the reconciler process runs on
type Services struct {
	DB         *postgresql.Client
	Rabbit     *rabbitmq.Client
	Redis      *redis.Client
	Balance    *balance.Service
	Ledger     *ledger.Store
	Reconciler *reconciler.Reconciler
}

// Bootstrap connects to the backing services and assembles the reconciler.
// Connections opened before a failure are closed.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Services, err error) {
	s, err := OpenLedger(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	var dispatcher reconciler.Dispatcher
	switch cfg.Dispatch.Mode {
	case config.DispatchModeQueue:
		s.Rabbit, err = InitRabbitMQ(&cfg.RabbitMQ, log.Component("rabbitmq"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		dispatcher = dispatch.NewQueueDispatcher(s.Rabbit)
	default:
		dispatcher = NewWebhook(&cfg.Dispatch, log.Component("dispatch"))
	}

	notifier, err := NewNotifier(&cfg.Notify, log.Component("notify"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	var opts []reconciler.Option
	if cfg.Lease.Enabled {
		s.Redis, err = lease.Connect(ctx, cfg.Lease.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize lease: %w", err)
		}
		opts = append(opts, reconciler.WithLocker(lease.NewRedis(s.Redis, log.Component("lease"))))
	}

	s.Reconciler = reconciler.New(
		s.Ledger,
		dispatcher,
		notifier,
		ReconcilerConfig(cfg),
		log.Component("reconciler"),
		opts...,
	)

	return s, nil
}

// OpenLedger connects only what the read and balance paths need
func OpenLedger(cfg *config.Config, log *logger.Logger) (*Services, error) {
	db, err := InitPostgreSQL(&cfg.Database, log.Component("postgresql"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := &Services{DB: db}
	s.Balance = balance.NewService(db.GetDB(), log.Component("balance"))
	s.Ledger = ledger.NewStore(db.GetDB(), s.Balance, log.Component("ledger"))

	return s, nil
}

// Close releases every connection that was opened
func (s *Services) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.Rabbit != nil {
		errs = append(errs, s.Rabbit.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// ReconcilerConfig maps the YAML sections onto the reconciler's tuning
func ReconcilerConfig(cfg *config.Config) reconciler.Config {
	r := cfg.Reconciler
	t := cfg.Notify.Templates

	return reconciler.Config{
		StalenessWindow: r.StalenessWindow,
		Concurrency:     r.Concurrency,
		BatchLimit:      r.BatchLimit,
		TxTimeout:       r.TxTimeout,
		DispatchTimeout: r.DispatchTimeout,
		NotifyTimeout:   r.NotifyTimeout,
		MaxSendFailures: r.SendFailureCap(),
		LeaseKey:        cfg.Lease.Key,
		LeaseTTL:        cfg.Lease.TTL,
		Templates: reconciler.Templates{
			FullyReady:     t.FullyReady,
			PartiallyReady: t.PartiallyReady,
			NoneReady:      t.NoneReady,
			Forced:         t.Forced,
		},
	}
}

// NewNotifier builds the configured email provider
func NewNotifier(cfg *config.NotifyConfig, log *slog.Logger) (notify.Notifier, error) {
	switch cfg.Provider {
	case config.NotifyProviderLoops:
		return notify.NewLoops(cfg.Loops.BaseURL, cfg.Loops.APIKey, cfg.Loops.Timeout), nil
	case config.NotifyProviderSMTP:
		messages := make(map[string]notify.MessageTemplate, len(cfg.Messages))
		for id, m := range cfg.Messages {
			messages[id] = notify.MessageTemplate{Subject: m.Subject, Body: m.Body}
		}
		smtp, err := notify.NewSMTP(notify.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
		}, messages)
		if err != nil {
			return nil, err
		}
		return smtp, nil
	case config.NotifyProviderNoop, "":
		return notify.NewNoop(log), nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}

// NewWebhook builds the generation webhook client
func NewWebhook(cfg *config.DispatchConfig, log *slog.Logger) *dispatch.WebhookClient {
	return dispatch.NewWebhookClient(dispatch.WebhookConfig{
		URL:           cfg.WebhookURL,
		SecretKey:     cfg.SecretKey,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	}, log)
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   timeFormat,
	})
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, log)
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}, log)
}
