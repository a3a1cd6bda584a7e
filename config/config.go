package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const localEnvFile = ".env.local"

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageGCS   = "gcs"
	StorageS3    = "s3"
)

// Message queue backends accepted by MQ_BACKEND.
const (
	MQNone     = "none"
	MQRabbitMQ = "rabbitmq"
	MQPubSub   = "pubsub"
)

type Config struct {
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	DebugRoutes    bool   `env:"DEBUG_ROUTES" envDefault:"true"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	OTelEndpoint   string `env:"OTEL_ENDPOINT"`

	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	MQ       MQConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"taskboard"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"taskboard_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

// AuthConfig carries the token signing secret and lifetime. Rotating the
// secret invalidates every token issued with the previous one.
type AuthConfig struct {
	SigningSecret string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"JWT_TTL" envDefault:"24h"`
	Enforce       bool          `env:"AUTHZ_ENFORCE" envDefault:"false"`
}

type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" envDefault:"local"`
	RootDir string `env:"STORAGE_ROOT_DIR" envDefault:"./uploads"`
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"taskboard"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type S3Config struct {
	Bucket       string `env:"S3_BUCKET"`
	Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
	BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
}

type MQConfig struct {
	Backend  string `env:"MQ_BACKEND" envDefault:"none"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`

	// DeadLetterSuffix names the queue that receives messages rejected twice.
	// Empty disables dead-lettering.
	DeadLetterSuffix string `env:"RABBITMQ_DEAD_LETTER_SUFFIX" envDefault:".dead"`
}

type PubSubConfig struct {
	ProjectID          string        `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string        `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string        `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
	AckDeadline        time.Duration `env:"PUBSUB_ACK_DEADLINE" envDefault:"30s"`
}

// LoadConfig reads configuration from the process environment. In dev mode
// .env is loaded first; .env.local is always honored when present. Neither
// file overrides variables that are already set.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}
	if _, err := os.Stat(localEnvFile); err == nil {
		if err := godotenv.Load(localEnvFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", localEnvFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Auth.SigningSecret = strings.TrimSpace(cfg.Auth.SigningSecret)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.MQ.Backend = strings.ToLower(strings.TrimSpace(cfg.MQ.Backend))
	return cfg, nil
}

// Validate checks the options the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.SigningSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageMinio, StorageGCS, StorageS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.MQ.Backend {
	case MQNone, MQRabbitMQ, MQPubSub:
	default:
		return fmt.Errorf("unknown mq backend %q", c.MQ.Backend)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Redacted returns a printable view of the configuration. Secrets are
// reported by length only.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"serverPort":       c.ServerPort,
		"storageBackend":   c.Storage.Backend,
		"storageRootDir":   c.Storage.RootDir,
		"mqBackend":        c.MQ.Backend,
		"databaseHost":     c.Database.Host,
		"databasePort":     c.Database.Port,
		"databaseName":     c.Database.DBName,
		"databaseUsername": c.Database.User,
		"jwtSecretLength":  len(c.Auth.SigningSecret),
		"tokenTTL":         c.Auth.TokenTTL.String(),
		"authzEnforced":    c.Auth.Enforce,
		"debugRoutes":      c.DebugRoutes,
		"tracingEnabled":   c.OTelEndpoint != "",
	}
}
