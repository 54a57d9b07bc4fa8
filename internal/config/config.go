package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type (
	// Config holds configuration settings for the monitor. Every field
	// has a usable default; only DatabaseURL is required to persist
	// anything
	Config struct {
		// API server
		APIHost      string
		APIPort      int
		DashboardURL string
		LogLevel     string

		// Store
		DatabaseURL string

		// Engine
		PollInterval   time.Duration
		StepTimeout    time.Duration
		BrowserTimeout time.Duration
		SubmitTimeout  time.Duration

		// Alerting
		AlertCooldown   time.Duration
		SlackWebhookURL string
		SMTP            SMTPConfig

		// Diagnosis
		GeminiAPIKey string

		ShutdownTimeout time.Duration
	}

	// SMTPConfig carries the email channel credentials. The channel is
	// enabled only when Host, From, and To are all present
	SMTPConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		From     string
		To       string
	}
)

const (
	DefaultAPIHost      = "0.0.0.0"
	DefaultAPIPort      = 4000
	DefaultDashboardURL = "http://localhost:3000"

	DefaultPollInterval    = 10 * time.Second
	DefaultStepTimeout     = 10 * time.Second
	DefaultBrowserTimeout  = 15 * time.Second
	DefaultSubmitTimeout   = 60 * time.Second
	DefaultAlertCooldown   = 300 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSMTPPort        = 587

	MaxTCPPort = 65535
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidPollInterval  = errors.New("poll interval must be positive")
	ErrInvalidStepTimeout   = errors.New("step timeout must be positive")
	ErrInvalidAlertCooldown = errors.New("alert cooldown cannot be negative")
)

// NewDefaultConfig creates a configuration with sensible defaults for all
// engine, alerting, and server settings
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:         DefaultAPIHost,
		APIPort:         DefaultAPIPort,
		DashboardURL:    DefaultDashboardURL,
		LogLevel:        "info",
		PollInterval:    DefaultPollInterval,
		StepTimeout:     DefaultStepTimeout,
		BrowserTimeout:  DefaultBrowserTimeout,
		SubmitTimeout:   DefaultSubmitTimeout,
		AlertCooldown:   DefaultAlertCooldown,
		ShutdownTimeout: DefaultShutdownTimeout,
		SMTP: SMTPConfig{
			Port: DefaultSMTPPort,
		},
	}
}

// LoadFromEnv populates configuration values from environment variables,
// first merging any .env file in the working directory. Returns an error
// if a value cannot be parsed
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if host := os.Getenv("API_HOST"); host != "" {
		c.APIHost = host
	}
	if dash := os.Getenv("DASHBOARD_URL"); dash != "" {
		c.DashboardURL = dash
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.DatabaseURL = dsn
	}
	c.SlackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	c.SMTP.Host = os.Getenv("SMTP_HOST")
	c.SMTP.User = os.Getenv("SMTP_USER")
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = os.Getenv("ALERT_EMAIL_FROM")
	c.SMTP.To = os.Getenv("ALERT_EMAIL_TO")

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("SMTP_PORT", &c.SMTP.Port, 0, MaxTCPPort); err != nil {
		return err
	}

	if err := loadEnvMillis("SCHEDULER_POLL_MS", &c.PollInterval); err != nil {
		return err
	}
	if err := loadEnvMillis("STEP_TIMEOUT_MS", &c.StepTimeout); err != nil {
		return err
	}
	if err := loadEnvMillis("BROWSER_TIMEOUT_MS", &c.BrowserTimeout); err != nil {
		return err
	}
	if err := loadEnvMillis("SUBMIT_TIMEOUT_MS", &c.SubmitTimeout); err != nil {
		return err
	}

	return loadEnvSeconds("ALERT_COOLDOWN_SECONDS", &c.AlertCooldown)
}

// Validate checks that all configuration values are usable
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.StepTimeout <= 0 || c.BrowserTimeout <= 0 || c.SubmitTimeout <= 0 {
		return ErrInvalidStepTimeout
	}
	if c.AlertCooldown < 0 {
		return ErrInvalidAlertCooldown
	}
	return nil
}

// SlackEnabled reports whether the Slack alert channel is configured
func (c *Config) SlackEnabled() bool {
	return c.SlackWebhookURL != ""
}

// EmailEnabled reports whether the email alert channel is configured
func (c *Config) EmailEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.From != "" && c.SMTP.To != ""
}

func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %d out of range (%d, %d]",
			key, v, min, max)
	}
	*dst = v
	return nil
}

func loadEnvMillis(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = time.Duration(v) * time.Millisecond
	return nil
}

func loadEnvSeconds(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = time.Duration(v) * time.Second
	return nil
}
