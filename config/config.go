package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost string
	HTTPPort string

	AuthServiceURL string
	AppAPIKey      string
	ServiceName    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int
	MySQLMaxLife time.Duration

	MailUsername string
	MailPassword string
	IMAPHost     string
	IMAPPort     int
	IMAPTLS      bool
	SMTPHost     string
	SMTPPort     int
	SMTPFromName string
	SendProvider string
	AWSRegion    string
	SpamFolder   string
	TemplateDir  string

	WorkerCount       int
	TaskMaxAttempts   int
	RetryBase         int
	RetryUnit         time.Duration
	RetryNonRetryable []string
	TaskTimeout       time.Duration
	Locker            string
	ReplyDedup        bool

	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment, optionally seeded from a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		AuthServiceURL: os.Getenv("AUTH_SERVICE_URL"),
		AppAPIKey:      os.Getenv("APP_API_KEY"),
		ServiceName:    getEnv("SERVICE_NAME", "mailtasks-service"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MySQLDSN: getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/mailtasks?parseTime=true"),

		MailUsername: os.Getenv("MAIL_USERNAME"),
		MailPassword: os.Getenv("MAIL_PASSWORD"),
		IMAPHost:     getEnv("IMAP_HOST", "imap.gmail.com"),
		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "My Email System"),
		SendProvider: getEnv("SEND_PROVIDER", "smtp"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SpamFolder:   getEnv("SPAM_FOLDER", "[Gmail]/Spam"),
		TemplateDir:  getEnv("TEMPLATE_DIR", "."),
		Locker:       getEnv("LOCKER", "redis"),

		RetryNonRetryable: splitList(os.Getenv("RETRY_NON_RETRYABLE")),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "app.log"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxOpen, err = getEnvInt("MYSQL_MAX_OPEN", 10); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxIdle, err = getEnvInt("MYSQL_MAX_IDLE", 5); err != nil {
		return nil, err
	}
	if cfg.MySQLMaxLife, err = getEnvDuration("MYSQL_MAX_LIFE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IMAPPort, err = getEnvInt("IMAP_PORT", 993); err != nil {
		return nil, err
	}
	if cfg.IMAPTLS, err = getEnvBool("IMAP_TLS", true); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getEnvInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.TaskMaxAttempts, err = getEnvInt("TASK_MAX_ATTEMPTS", 4); err != nil {
		return nil, err
	}
	if cfg.RetryBase, err = getEnvInt("RETRY_BASE", 2); err != nil {
		return nil, err
	}
	if cfg.RetryUnit, err = getEnvDuration("RETRY_UNIT", time.Second); err != nil {
		return nil, err
	}
	if cfg.TaskTimeout, err = getEnvDuration("TASK_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReplyDedup, err = getEnvBool("REPLY_DEDUP", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings a command depends on are present.
func (c *Config) Validate() error {
	var missing []string
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.IMAPHost == "" {
		missing = append(missing, "IMAP_HOST")
	}
	if c.SMTPHost == "" && strings.EqualFold(c.SendProvider, "smtp") {
		missing = append(missing, "SMTP_HOST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.WorkerCount < 1 {
		return errors.New("WORKER_COUNT must be at least 1")
	}
	if c.TaskMaxAttempts < 1 {
		return errors.New("TASK_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBase < 1 {
		return errors.New("RETRY_BASE must be at least 1")
	}
	return nil
}

// ValidateMailbox checks that default mailbox credentials are present.
func (c *Config) ValidateMailbox() error {
	if c.MailUsername == "" || c.MailPassword == "" {
		return errors.New("MAIL_USERNAME and MAIL_PASSWORD are required")
	}
	return nil
}

// ValidateAuth checks the settings the HTTP server needs to authenticate internal callers.
func (c *Config) ValidateAuth() error {
	var missing []string
	if c.AuthServiceURL == "" {
		missing = append(missing, "AUTH_SERVICE_URL")
	}
	if c.AppAPIKey == "" {
		missing = append(missing, "APP_API_KEY")
	}
	if c.ServiceName == "" {
		missing = append(missing, "SERVICE_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
