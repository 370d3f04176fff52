// Package config loads the service configuration from the environment.
// Every setting has a development default except the secrets and ids
// validation refuses to run without.
package config

import (
	"fmt"
	"os"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config is the full runtime configuration, read once at boot.
type Config struct {
	AppName string
	EnvMode string

	// ArangoDB
	ArangoURL      string
	ArangoUser     string
	ArangoPassword string
	ArangoDatabase string

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool

	// Kafka
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string

	// Auth
	AuthRedisURL   string
	AuthKeyPrefix  string
	AuthJWKSURL    string
	AzureTenantID  string
	AzureClientID  string
	AzureSecret    string
	MicroserviceID string

	// Integrity
	IntegritySecret string

	// HTTP
	ListenAddr string
}

// Load reads the environment and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppName: envOr("APP_NAME", "dms"),
		EnvMode: envOr("ENV_MODE", "dev"),

		ArangoURL:      envOr("ARANGO_HOST_URL", "http://localhost:8529"),
		ArangoUser:     envOr("ARANGO_USER", "root"),
		ArangoPassword: os.Getenv("ARANGO_ROOT_PASSWORD"),
		ArangoDatabase: envOr("ARANGO_DB_NAME", "dms_db"),

		MinioEndpoint:  envOr("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ROOT_USER"),
		MinioSecretKey: os.Getenv("MINIO_ROOT_PASSWORD"),
		MinioBucket:    envOr("MINIO_BUCKET_NAME", "documentos"),
		MinioSecure:    envBool("MINIO_SECURE", false),

		KafkaBrokers:       []string{envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")},
		KafkaTopic:         envOr("KAFKA_OCR_TOPIC", "ocr.document.processed"),
		KafkaConsumerGroup: envOr("KAFKA_CONSUMER_GROUP", "document-service-group"),

		AuthRedisURL:   envOr("AUTH_REDIS_URL", "redis://localhost:6379"),
		AuthKeyPrefix:  envOr("AUTH_KEY_PREFIX", "laravel_database_"),
		AuthJWKSURL:    os.Getenv("AUTH_JWKS_URL"),
		AzureTenantID:  os.Getenv("AZURE_TENANT_ID"),
		AzureClientID:  os.Getenv("AZURE_CLIENT_ID"),
		AzureSecret:    os.Getenv("AZURE_CLIENT_SECRET"),
		MicroserviceID: os.Getenv("DMS_MICROSERVICE_ID"),

		IntegritySecret: os.Getenv("DOCUMENT_INTEGRITY_SECRET"),

		ListenAddr: envOr("LISTEN_ADDR", ":8000"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces the settings the service cannot run without.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ArangoURL, validation.Required),
		validation.Field(&c.ArangoDatabase, validation.Required),
		validation.Field(&c.MinioEndpoint, validation.Required),
		validation.Field(&c.MinioBucket, validation.Required),
		validation.Field(&c.KafkaBrokers, validation.Required),
		validation.Field(&c.MicroserviceID, validation.Required),
		validation.Field(&c.IntegritySecret, validation.Required),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
