package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

const (
	DispatchLocal = "local"
	DispatchQueue = "queue"
)

var config *Config

// Configuration This struct holds config envs and values. Only this struct
// must be used to hold any configuration values, no direct access to env,
// ini or any other config source should be made
type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	AppName  string `env:"APP_NAME,default=sms_widget_gateway"`
	LogEnv   string `env:"LOG_ENV"`
	LogLevel string `env:"LOG_LEVEL"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`
	HttpAllowedOrigins string        `env:"HTTP_ALLOWED_ORIGINS,default=*"`

	// Bearer token required by the send and flush endpoints. When empty any
	// bearer token is accepted, the check is presence only.
	ApiAuthSecret string `env:"API_AUTH_SECRET"`

	MetricsAddr string `env:"METRICS_ADDR"`
	MetricsURI  string `env:"METRICS_URI,default=/metrics"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=smsgw:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=smsgw"`

	// local: flush in an in-process worker pool after each write.
	// queue: publish a flush job to the redis stream for cmd/processor.
	OutboxDispatch       string        `env:"OUTBOX_DISPATCH,default=local"`
	OutboxWorkers        int           `env:"OUTBOX_WORKERS,default=4"`
	OutboxBuffer         int           `env:"OUTBOX_BUFFER,default=256"`
	OutboxBatchSize      int           `env:"OUTBOX_BATCH_SIZE,default=50"`
	OutboxWebhookTimeout time.Duration `env:"OUTBOX_WEBHOOK_TIMEOUT,default=5s"`
	OutboxSweepInterval  time.Duration `env:"OUTBOX_SWEEP_INTERVAL,default=30s"`
	OutboxReceiptTTL     time.Duration `env:"OUTBOX_RECEIPT_TTL,default=72h"`
	OutboxLockTTL        time.Duration `env:"OUTBOX_LOCK_TTL,default=30s"`

	QueueName              string        `env:"QUEUE_NAME,default=outbox:flush"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=flushers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	CarrierTimeout time.Duration `env:"SMS_CARRIER_TIMEOUT,default=10s"`

	SveveURL    string `env:"SMS_SVEVE_URL,default=https://api.sveve.dk/SMS/SendMessage"`
	SveveUser   string `env:"SMS_SVEVE_USER"`
	SvevePasswd string `env:"SMS_SVEVE_PASSWD"`
	SveveFrom   string `env:"SMS_SVEVE_FROM"`

	TwilioURL        string `env:"SMS_TWILIO_URL,default=https://api.twilio.com"`
	TwilioAccountSID string `env:"SMS_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"SMS_TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"SMS_TWILIO_FROM"`

	TwilioUSAccountSID string `env:"SMS_TWILIO_US_ACCOUNT_SID"`
	TwilioUSAuthToken  string `env:"SMS_TWILIO_US_AUTH_TOKEN"`
	TwilioUSFrom       string `env:"SMS_TWILIO_US_FROM"`

	TwilioUKAccountSID string `env:"SMS_TWILIO_UK_ACCOUNT_SID"`
	TwilioUKAuthToken  string `env:"SMS_TWILIO_UK_AUTH_TOKEN"`
	TwilioUKFrom       string `env:"SMS_TWILIO_UK_FROM"`
}

func Load(path string) error {
	c, err := Parse(path)
	if err != nil {
		return err
	}
	config = c
	return nil
}

// Parse reads the optional dotenv file at path into the process environment
// and maps the environment onto a fresh Config.
func Parse(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		logger.Info("loading env file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return nil, errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	switch c.OutboxDispatch {
	case DispatchLocal, DispatchQueue:
	default:
		return nil, errors.Errorf("unknown OUTBOX_DISPATCH %q", c.OutboxDispatch)
	}
	return c, nil
}

// AllowedOrigins splits the comma separated HTTP_ALLOWED_ORIGINS value.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.HttpAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Set replaces the loaded configuration, used by tests and embedding binaries.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
