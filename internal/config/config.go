// Package config assembles the core's Configuration struct from environment
// variables (and an optional local .env), the way
// vidinfra-flexprice/internal/config/config.go does.
package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/spf13/viper"
)

// Configuration is the single process-wide config struct. Every subsystem
// reads its own sub-struct; nothing reaches for a package-level global.
type Configuration struct {
	Logging     LoggingConfig     `validate:"required"`
	Postgres    PostgresConfig    `validate:"required"`
	Kafka       KafkaConfig       `validate:"required"`
	ClickHouse  ClickHouseConfig  `validate:"required"`
	PGMQ        PGMQConfig        `validate:"required"`
	Scheduler   SchedulerConfig   `validate:"required"`
	Webhook     WebhookConfig     `validate:"required"`
	Payment     PaymentConfig     `validate:"omitempty"`
	ObjectStore ObjectStoreConfig `validate:"required"`
	Secrets     SecretsConfig     `validate:"required"`
	FX          FXConfig          `validate:"omitempty"`
	Cache       CacheConfig       `validate:"required"`
	PDFRender   PDFRenderConfig   `validate:"omitempty"`
}

type LoggingConfig struct {
	Level logger.Level `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password" validate:"required"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User, c.Password, c.DBName, c.Host, c.Port, c.SSLMode,
	)
}

// KafkaConfig describes the usage-ingestion message broker (spec §6): two
// topics, raw and preprocessed, JSON-per-line, optional SASL/SSL.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers" validate:"required"`
	ConsumerGroup   string   `mapstructure:"consumer_group" validate:"required"`
	RawTopic        string   `mapstructure:"raw_topic" validate:"required"`
	PreprocessedTopic string `mapstructure:"preprocessed_topic" validate:"required"`
	UseSASL         bool     `mapstructure:"use_sasl"`
	SASLUser        string   `mapstructure:"sasl_user"`
	SASLPassword    string   `mapstructure:"sasl_password"`
	ClientID        string   `mapstructure:"client_id" validate:"required"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address" validate:"required"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
}

// GetClientOptions builds the clickhouse-go connection options, the way
// vidinfra-flexprice/internal/config/config.go's ClickHouseConfig does.
func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

// PGMQConfig tunes the outbox dispatcher and per-queue worker loops,
// spec §4.6.
type PGMQConfig struct {
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxReadCount      int           `mapstructure:"max_read_count"`
	BatchSize         int           `mapstructure:"batch_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	DispatchBatchSize int           `mapstructure:"dispatch_batch_size"`
}

// SchedulerConfig drives the cron loop (component H): one cadence per
// periodic task. The tasks' advisory lock keys are the fixed
// postgres.LockKey constants, not configuration.
type SchedulerConfig struct {
	AdvanceSubscriptionsCron string `mapstructure:"advance_subscriptions_cron"`
	FinalizeInvoicesCron     string `mapstructure:"finalize_invoices_cron"`
	RetryPaymentsCron        string `mapstructure:"retry_payments_cron"`
	CleanupCheckoutsCron     string `mapstructure:"cleanup_checkouts_cron"`
	RefreshFXCron            string `mapstructure:"refresh_fx_cron"`
}

type WebhookConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SvixBaseURL  string `mapstructure:"svix_base_url"`
	SvixAuthToken string `mapstructure:"svix_auth_token"`
}

type PaymentConfig struct {
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
}

// DefaultHTTPTimeouts applies spec §5's "connect+read timeout (default 5s +
// 10s)" when the config omits them.
func (c PaymentConfig) DefaultHTTPTimeouts() (connect, read time.Duration) {
	connect, read = c.ConnectTimeout, c.ReadTimeout
	if connect == 0 {
		connect = 5 * time.Second
	}
	if read == 0 {
		read = 10 * time.Second
	}
	return connect, read
}

type ObjectStoreConfig struct {
	Region string `mapstructure:"region" validate:"required"`
	Bucket string `mapstructure:"bucket" validate:"required"`
	Prefix string `mapstructure:"prefix"`
}

// SecretsConfig holds the 32-byte crypt key used to encrypt provider API
// keys / webhook secrets at rest (ChaCha20-Poly1305, spec §6).
type SecretsConfig struct {
	EncryptionKeyHex string `mapstructure:"encryption_key_hex" validate:"required,len=64"`
}

type FXConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// PDFRenderConfig points at the external invoice-rendering service, spec
// §6's "render(invoice_model) -> pdf_bytes. Implementation-specific."
type PDFRenderConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type CacheConfig struct {
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	TokenCapacity int           `mapstructure:"token_capacity"`
}

// New loads configuration from CORE_-prefixed environment variables (and an
// optional local .env), the way vidinfra-flexprice/internal/config.NewConfig
// does with its FLEXPRICE_ prefix.
func New() (*Configuration, error) {
	v := viper.New()

	_ = godotenv.Load()

	v.SetEnvPrefix("CORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("pgmq.visibility_timeout", "30s")
	v.SetDefault("pgmq.max_read_count", 5)
	v.SetDefault("pgmq.batch_size", 10)
	v.SetDefault("pgmq.poll_interval", "2s")
	v.SetDefault("pgmq.dispatch_batch_size", 100)
	v.SetDefault("scheduler.advance_subscriptions_cron", "*/5 * * * *")
	v.SetDefault("scheduler.finalize_invoices_cron", "*/10 * * * *")
	v.SetDefault("scheduler.retry_payments_cron", "*/15 * * * *")
	v.SetDefault("scheduler.cleanup_checkouts_cron", "0 * * * *")
	v.SetDefault("scheduler.refresh_fx_cron", "0 3 * * *")
	v.SetDefault("cache.token_ttl", "2m")
	v.SetDefault("cache.token_capacity", 100)
	v.SetDefault("fx.endpoint", "https://openexchangerates.org/api/latest.json")
	v.SetDefault("pdfrender.endpoint", "http://localhost:9090/render")
}

// Validate runs struct-tag validation over the assembled configuration.
// An invalid/missing config is fatal for process startup, per spec §7's
// Initialization error kind.
func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}
