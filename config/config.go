package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"inviqa/notification-relay/log"

	"github.com/alexflint/go-arg"
)

const (
	MySQL    DbDriver = "mysql"
	Postgres DbDriver = "postgres"
)

const (
	ProviderLog    = "log"
	ProviderSMTP   = "smtp"
	ProviderBrevo  = "brevo"
	ProviderTwilio = "twilio"
)

type DbDriver string

var supportedDbTypes = map[DbDriver]bool{
	Postgres: true,
	MySQL:    true,
}

var supportedEmailProviders = map[string]bool{
	ProviderLog:   true,
	ProviderSMTP:  true,
	ProviderBrevo: true,
}

var supportedSmsProviders = map[string]bool{
	ProviderLog:    true,
	ProviderTwilio: true,
}

type Config struct {
	SkipMigrations    bool     `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	DBHost            string   `arg:"--db-host,env:DB_HOST,required"`
	DBPort            uint32   `arg:"--db-port,env:DB_PORT,required"`
	DBUser            string   `arg:"--db-user,env:DB_USER,required"`
	DBPass            string   `arg:"--db-pass,env:DB_PASS,required"`
	DBSchema          string   `arg:"--db-schema,env:DB_SCHEMA,required"`
	DBDriver          DbDriver `arg:"--db-driver,env:DB_DRIVER,required"`
	DBMessagesTable   string   `arg:"--db-messages-table,env:DB_MESSAGES_TABLE"`
	DBBatchesTable    string   `arg:"--db-batches-table,env:DB_BATCHES_TABLE"`
	DBRecipientsTable string   `arg:"--db-recipients-table,env:DB_RECIPIENTS_TABLE"`
	TLSEnable         bool     `arg:"--tls,env:TLS_ENABLE"`
	TLSSkipVerifyPeer bool     `arg:"--tls-skip-verify-peer,env:TLS_SKIP_VERIFY_PEER"`
	WorkerConcurrency int      `arg:"--worker-concurrency,env:WORKER_CONCURRENCY"`
	PollFrequencyMs   int      `arg:"--poll-frequency-ms,env:POLL_FREQUENCY_MS"`
	ProviderTimeoutMs int      `arg:"--provider-timeout-ms,env:PROVIDER_TIMEOUT_MS"`
	ProcessingTimeout int      `arg:"--processing-timeout-ms,env:PROCESSING_TIMEOUT_MS"`
	SweepFrequencyMs  int      `arg:"--sweep-frequency-ms,env:SWEEP_FREQUENCY_MS"`
	MaxRetryAttempts  int      `arg:"--max-retry-attempts,env:MAX_RETRY_ATTEMPTS"`
	PriorityOrdering  bool     `arg:"--priority-ordering,env:PRIORITY_ORDERING"`
	EmailProvider     string   `arg:"--email-provider,env:EMAIL_PROVIDER"`
	SmsProvider       string   `arg:"--sms-provider,env:SMS_PROVIDER"`
	SMTPHost          string   `arg:"--smtp-host,env:SMTP_HOST"`
	SMTPPort          int      `arg:"--smtp-port,env:SMTP_PORT"`
	SMTPUsername      string   `arg:"--smtp-username,env:SMTP_USERNAME"`
	SMTPPassword      string   `arg:"--smtp-password,env:SMTP_PASSWORD"`
	SMTPFrom          string   `arg:"--smtp-from,env:SMTP_FROM"`
	BrevoAPIKey       string   `arg:"--brevo-api-key,env:BREVO_API_KEY"`
	BrevoSender       string   `arg:"--brevo-sender,env:BREVO_SENDER"`
	TwilioAccountSid  string   `arg:"--twilio-account-sid,env:TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string   `arg:"--twilio-auth-token,env:TWILIO_AUTH_TOKEN"`
	TwilioFrom        string   `arg:"--twilio-from,env:TWILIO_FROM"`
	KafkaHost         []string `arg:"--kafka-host,env:KAFKA_HOST"`
	KafkaEventsTopic  string   `arg:"--kafka-events-topic,env:KAFKA_EVENTS_TOPIC"`
	RedisAddr         string   `arg:"--redis-addr,env:REDIS_ADDR"`
	RedisPassword     string   `arg:"--redis-password,env:REDIS_PASSWORD"`
	RedisDB           int      `arg:"--redis-db,env:REDIS_DB"`
	RecipientCacheTTL int      `arg:"--recipient-cache-ttl-ms,env:RECIPIENT_CACHE_TTL_MS"`
	PriceEmailUnit    float64  `arg:"--price-email-unit,env:PRICE_EMAIL_UNIT"`
	PriceSmsUnit      float64  `arg:"--price-sms-unit,env:PRICE_SMS_UNIT"`
	RunSweep          bool     `arg:"--sweep,env:RUN_SWEEP"`
	RunOptimize       bool     `arg:"--optimize,env:RUN_OPTIMIZE"`
	SidecarProxyUrl   string   `arg:"--sidecar-proxy-url,env:SIDECAR_PROXY_URL"`
	HTTPAddr          string   `arg:"--http-addr,env:HTTP_ADDR"`
}

func NewConfig() (*Config, error) {
	c := &Config{
		DBMessagesTable:   "notification_messages",
		DBBatchesTable:    "notification_batches",
		DBRecipientsTable: "recipients",
		WorkerConcurrency: 1,
		PollFrequencyMs:   500,
		ProviderTimeoutMs: 30000,
		ProcessingTimeout: 600000,
		SweepFrequencyMs:  60000,
		MaxRetryAttempts:  5,
		EmailProvider:     ProviderLog,
		SmsProvider:       ProviderLog,
		SMTPPort:          587,
		KafkaEventsTopic:  "notification.events",
		RecipientCacheTTL: 300000,
		PriceEmailUnit:    0.001,
		PriceSmsUnit:      0.0075,
		HTTPAddr:          ":80",
	}
	arg.MustParse(c)

	if !supportedDbTypes[c.DBDriver] {
		return nil, fmt.Errorf("the DB_DRIVER provided (%s) is not supported", c.DBDriver)
	}

	if !supportedEmailProviders[c.EmailProvider] {
		return nil, fmt.Errorf("the EMAIL_PROVIDER provided (%s) is not supported", c.EmailProvider)
	}

	if !supportedSmsProviders[c.SmsProvider] {
		return nil, fmt.Errorf("the SMS_PROVIDER provided (%s) is not supported", c.SmsProvider)
	}

	if c.MaxRetryAttempts < 1 {
		return nil, fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", c.MaxRetryAttempts)
	}

	return c, nil
}

func (c *Config) GetPollIntervalDurationInMs() time.Duration {
	return time.Duration(c.PollFrequencyMs) * time.Millisecond
}

func (c *Config) GetProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMs) * time.Millisecond
}

func (c *Config) GetProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepFrequencyMs) * time.Millisecond
}

func (c *Config) GetRecipientCacheTTL() time.Duration {
	return time.Duration(c.RecipientCacheTTL) * time.Millisecond
}

// GetDriverName returns the database/sql driver name registered for the
// configured database.
func (c *Config) GetDriverName() string {
	if c.DBDriver.Postgres() {
		return "pgx"
	}
	return c.DBDriver.String()
}

func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case MySQL:
		tls := "false"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				tls = "skip-verify"
			} else {
				tls = "true"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s&multiStatements=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBSchema, tls)
	case Postgres:
		sslMode := "disable"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				sslMode = "require"
			} else {
				sslMode = "verify-full"
			}
		}
		return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", c.DBDriver, url.UserPassword(c.DBUser, c.DBPass), c.DBHost, c.DBPort, c.DBSchema, sslMode)
	default:
		log.Logger.Fatalf("the DB driver configured (%s) is not supported", c.DBDriver)
		return ""
	}
}

// GetDependencySystemAddresses lists the TCP addresses checked by the
// readiness probe.
func (c *Config) GetDependencySystemAddresses() []string {
	addrs := append([]string{}, c.KafkaHost...)
	if c.RedisAddr != "" {
		addrs = append(addrs, c.RedisAddr)
	}
	return addrs
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaHost) > 0
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"SkipMigrations":    c.SkipMigrations,
		"DBHost":            c.DBHost,
		"DBPort":            c.DBPort,
		"DBUser":            c.DBUser,
		"DBPass":            "xxxxx",
		"DBSchema":          c.DBSchema,
		"DBDriver":          c.DBDriver,
		"DBMessagesTable":   c.DBMessagesTable,
		"DBBatchesTable":    c.DBBatchesTable,
		"DBRecipientsTable": c.DBRecipientsTable,
		"TLSEnable":         c.TLSEnable,
		"TLSSkipVerifyPeer": c.TLSSkipVerifyPeer,
		"WorkerConcurrency": c.WorkerConcurrency,
		"PollFrequencyMs":   c.PollFrequencyMs,
		"ProviderTimeoutMs": c.ProviderTimeoutMs,
		"ProcessingTimeout": c.ProcessingTimeout,
		"SweepFrequencyMs":  c.SweepFrequencyMs,
		"MaxRetryAttempts":  c.MaxRetryAttempts,
		"PriorityOrdering":  c.PriorityOrdering,
		"EmailProvider":     c.EmailProvider,
		"SmsProvider":       c.SmsProvider,
		"SMTPHost":          c.SMTPHost,
		"SMTPPort":          c.SMTPPort,
		"SMTPUsername":      c.SMTPUsername,
		"SMTPPassword":      "xxxxx",
		"SMTPFrom":          c.SMTPFrom,
		"BrevoAPIKey":       "xxxxx",
		"BrevoSender":       c.BrevoSender,
		"TwilioAccountSid":  c.TwilioAccountSid,
		"TwilioAuthToken":   "xxxxx",
		"TwilioFrom":        c.TwilioFrom,
		"KafkaHost":         c.KafkaHost,
		"KafkaEventsTopic":  c.KafkaEventsTopic,
		"RedisAddr":         c.RedisAddr,
		"RedisPassword":     "xxxxx",
		"RedisDB":           c.RedisDB,
		"RecipientCacheTTL": c.RecipientCacheTTL,
		"PriceEmailUnit":    c.PriceEmailUnit,
		"PriceSmsUnit":      c.PriceSmsUnit,
		"RunSweep":          c.RunSweep,
		"RunOptimize":       c.RunOptimize,
		"SidecarProxyUrl":   c.SidecarProxyUrl,
		"HTTPAddr":          c.HTTPAddr,
	})
}

func (d DbDriver) MySQL() bool {
	return d == MySQL
}

func (d DbDriver) Postgres() bool {
	return d == Postgres
}

func (d DbDriver) String() string {
	return string(d)
}
