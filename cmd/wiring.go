package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-mailtasks/app/executor"
	"github.com/vibast-solutions/ms-go-mailtasks/app/lock"
	"github.com/vibast-solutions/ms-go-mailtasks/app/logging"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailbox"
	"github.com/vibast-solutions/ms-go-mailtasks/app/mailerr"
	"github.com/vibast-solutions/ms-go-mailtasks/app/preparer"
	"github.com/vibast-solutions/ms-go-mailtasks/app/provider"
	"github.com/vibast-solutions/ms-go-mailtasks/app/queue"
	"github.com/vibast-solutions/ms-go-mailtasks/app/repository"
	"github.com/vibast-solutions/ms-go-mailtasks/app/retry"
	"github.com/vibast-solutions/ms-go-mailtasks/app/service"
	"github.com/vibast-solutions/ms-go-mailtasks/app/templater"
	"github.com/vibast-solutions/ms-go-mailtasks/config"
)

const (
	cancelMarkTTL = 7 * 24 * time.Hour
	repliedTTL    = 30 * 24 * time.Hour
)

// app holds the shared infrastructure every command builds on.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	db       *sql.DB
	rdb      *redis.Client
	producer *queue.TaskProducer
	tasks    *service.TaskService
}

// bootstrap loads configuration and connects to MySQL and Redis.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(cfg.MySQLMaxLife)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, rdb: rdb, producer: queue.NewTaskProducer(rdb)}
	a.tasks, err = a.buildTaskService()
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database and Redis connections.
func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.WithError(err).Warn("closing redis failed")
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("closing database failed")
	}
}

// defaultCredentials is the configured mailbox login used when a request names none.
func (a *app) defaultCredentials() mailbox.Credentials {
	return mailbox.Credentials{
		Username: a.cfg.MailUsername,
		Secret:   a.cfg.MailPassword,
		Host:     a.cfg.IMAPHost,
		Port:     a.cfg.IMAPPort,
	}
}

func (a *app) buildTaskService() (*service.TaskService, error) {
	emailProvider, err := buildEmailProvider(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build email provider: %w", err)
	}
	locker, err := buildLocker(a.cfg, a.db, a.rdb)
	if err != nil {
		return nil, err
	}
	policy, err := buildPolicy(a.cfg)
	if err != nil {
		return nil, err
	}

	emailPreparer := preparer.NewChain(preparer.NewRawPreparer(a.cfg.SMTPFromName))
	transport := mailbox.NewIMAPTransport(emailPreparer, emailProvider, a.logger, mailbox.WithIMAPTLS(a.cfg.IMAPTLS))

	var tracker executor.ReplyTracker
	if a.cfg.ReplyDedup {
		tracker = repository.NewRepliedRepository(a.rdb, repliedTTL)
	}

	registry := executor.NewRegistry(
		executor.NewReadAndReply(transport, tracker, a.logger),
		executor.NewSendTemplated(transport, templater.NewFileLoader(a.cfg.TemplateDir), templater.NewTextRenderer(), a.logger),
		executor.NewPullFromSpam(transport, a.cfg.SpamFolder, a.logger),
	)

	return service.NewTaskService(
		a.producer,
		queue.NewCanceller(a.rdb, cancelMarkTTL),
		registry,
		retry.NewScheduler(policy),
		repository.NewTaskHistoryRepository(a.db),
		locker,
		a.cfg.TaskTimeout,
		a.logger,
	), nil
}

func buildEmailProvider(cfg *config.Config, logger logrus.FieldLogger) (provider.EmailProvider, error) {
	switch strings.ToLower(cfg.SendProvider) {
	case "", "smtp":
		return provider.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, logger), nil
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return provider.NewSESProvider(awsCfg), nil
	case "noop":
		return provider.NewNoopProvider(logger), nil
	default:
		return nil, fmt.Errorf("unsupported SEND_PROVIDER: %s", cfg.SendProvider)
	}
}

func buildLocker(cfg *config.Config, db *sql.DB, rdb *redis.Client) (lock.Locker, error) {
	switch strings.ToLower(cfg.Locker) {
	case "", "redis":
		return lock.NewRedisLocker(rdb), nil
	case "mysql":
		return lock.NewMySQLLocker(db, 0), nil
	default:
		return nil, fmt.Errorf("unsupported LOCKER: %s", cfg.Locker)
	}
}

func buildPolicy(cfg *config.Config) (retry.Policy, error) {
	policy := retry.Policy{
		MaxAttempts: cfg.TaskMaxAttempts,
		Base:        cfg.RetryBase,
		Unit:        cfg.RetryUnit,
	}
	for _, name := range cfg.RetryNonRetryable {
		kind, err := mailerr.ParseKind(name)
		if err != nil {
			return retry.Policy{}, fmt.Errorf("RETRY_NON_RETRYABLE: %w", err)
		}
		if policy.NonRetryable == nil {
			policy.NonRetryable = make(map[mailerr.Kind]bool)
		}
		policy.NonRetryable[kind] = true
	}
	return policy, nil
}
