// Package config builds the immutable service configuration once at process
// start. Nothing else in the service reads the environment for settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ledgersync/internal/pkg/env"
)

const (
	SignatureModeStrict     = "strict"
	SignatureModePermissive = "permissive"

	ProcessingModeInline     = "inline"
	ProcessingModeBackground = "background"

	AccountingEnvSandbox    = "sandbox"
	AccountingEnvProduction = "production"
)

const (
	sandboxAPIBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	productionAPIBaseURL = "https://quickbooks.api.intuit.com"
)

// Webhook configures the inbound endpoint.
type Webhook struct {
	Source            string        `validate:"required,max=50"`
	VerifierToken     string        `validate:"required_if=SignatureMode strict"`
	SignatureMode     string        `validate:"oneof=strict permissive"`
	ProcessingMode    string        `validate:"oneof=inline background"`
	BackgroundWorkers int           `validate:"min=1,max=64"`
	SyncTimeout       time.Duration `validate:"min=1s"`
}

// Accounting configures outbound calls to the remote accounting API.
type Accounting struct {
	AccessToken  string
	RealmID      string
	Environment  string        `validate:"oneof=sandbox production"`
	APIBaseURL   string        `validate:"required,url"`
	MinorVersion string        `validate:"required,numeric"`
	FetchTimeout time.Duration `validate:"min=100ms"`
}

// Configured reports whether remote fetches can be attempted at all.
func (a Accounting) Configured() bool {
	return strings.TrimSpace(a.AccessToken) != "" && strings.TrimSpace(a.APIBaseURL) != ""
}

type Database struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string
	Password string
	Name     string
}

// DSN returns the MySQL data source name.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type Cache struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

type Admin struct {
	User         string
	PasswordHash string
}

// Enabled reports whether the admin API may be mounted.
func (a Admin) Enabled() bool {
	return a.User != "" && a.PasswordHash != ""
}

type Queue struct {
	Workers          int           `validate:"min=1,max=64"`
	StuckDeliveryAge time.Duration `validate:"min=1m"`
}

type Archive struct {
	Enabled         bool
	AccessKeyID     string `validate:"required_if=Enabled true"`
	SecretAccessKey string `validate:"required_if=Enabled true"`
	Region          string
	BucketName      string `validate:"required_if=Enabled true"`
	EndpointURL     string `validate:"omitempty,url"`
}

// Config is the full service configuration.
type Config struct {
	AppEnv     string `validate:"required"`
	Host       string `validate:"required"`
	Port       string `validate:"required,numeric"`
	Webhook    Webhook
	Accounting Accounting
	Database   Database
	Cache      Cache
	Admin      Admin
	Queue      Queue
	Archive    Archive
}

// IsProd reports whether the service runs with production defaults.
func (c *Config) IsProd() bool {
	return c.AppEnv == "prod"
}

// StrictSignatures reports whether a bad signature rejects the delivery.
func (c *Config) StrictSignatures() bool {
	return c.Webhook.SignatureMode == SignatureModeStrict
}

// Load reads the configuration from the env package and validates it.
func Load() (*Config, error) {
	appEnv := env.GetEnv("APP_ENV", "prod")

	defaultSignatureMode := SignatureModeStrict
	if appEnv != "prod" {
		defaultSignatureMode = SignatureModePermissive
	}

	accountingEnv := strings.ToLower(env.GetEnv("ACCOUNTING_ENVIRONMENT", AccountingEnvSandbox))
	baseURL := sandboxAPIBaseURL
	if accountingEnv == AccountingEnvProduction {
		baseURL = productionAPIBaseURL
	}

	cfg := &Config{
		AppEnv: appEnv,
		Host:   env.GetEnv("APP_HOST", "localhost"),
		Port:   env.GetEnv("APP_PORT", "4000"),
		Webhook: Webhook{
			Source:            env.GetEnv("WEBHOOK_SOURCE", "quickbooks"),
			VerifierToken:     strings.TrimSpace(env.GetEnv("WEBHOOK_VERIFIER_TOKEN", "")),
			SignatureMode:     strings.ToLower(env.GetEnv("WEBHOOK_SIGNATURE_MODE", defaultSignatureMode)),
			ProcessingMode:    strings.ToLower(env.GetEnv("WEBHOOK_PROCESSING_MODE", ProcessingModeBackground)),
			BackgroundWorkers: env.GetEnvInt("WEBHOOK_BACKGROUND_WORKERS", 4),
			SyncTimeout:       env.GetEnvDuration("WEBHOOK_SYNC_TIMEOUT", 2*time.Minute),
		},
		Accounting: Accounting{
			AccessToken:  strings.TrimSpace(env.GetEnv("ACCOUNTING_ACCESS_TOKEN", "")),
			RealmID:      strings.TrimSpace(env.GetEnv("ACCOUNTING_REALM_ID", "")),
			Environment:  accountingEnv,
			APIBaseURL:   strings.TrimRight(strings.TrimSpace(env.GetEnv("ACCOUNTING_API_BASE_URL", baseURL)), "/"),
			MinorVersion: env.GetEnv("ACCOUNTING_MINOR_VERSION", "75"),
			FetchTimeout: env.GetEnvDuration("ACCOUNTING_FETCH_TIMEOUT", 5*time.Second),
		},
		Database: Database{
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Name:     env.GetEnv("DB_NAME", ""),
		},
		Cache: Cache{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Admin: Admin{
			User:         env.GetEnv("ADMIN_USER", ""),
			PasswordHash: env.GetEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Queue: Queue{
			Workers:          env.GetEnvInt("JOBQUEUE_WORKERS", 3),
			StuckDeliveryAge: env.GetEnvDuration("STUCK_DELIVERY_AGE", 15*time.Minute),
		},
		Archive: Archive{
			Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          env.GetEnv("S3_REGION", "us-east-1"),
			BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// A stuck row must outlive its detached sync, or the sweeper replays
	// deliveries that are still running.
	if c.Queue.StuckDeliveryAge <= c.Webhook.SyncTimeout {
		return fmt.Errorf("invalid configuration: STUCK_DELIVERY_AGE (%s) must be greater than WEBHOOK_SYNC_TIMEOUT (%s)",
			c.Queue.StuckDeliveryAge, c.Webhook.SyncTimeout)
	}
	return nil
}
