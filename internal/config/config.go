package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me"

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver       string `mapstructure:"STORE_DRIVER"` // "mongo" or "memory"
	MongoURI          string `mapstructure:"MONGO_URI"`
	MongoDatabase     string `mapstructure:"MONGO_DATABASE"`
	MongoTransactions bool   `mapstructure:"MONGO_TRANSACTIONS"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTTTL        time.Duration `mapstructure:"JWT_TTL"`
	BcryptCost    int           `mapstructure:"BCRYPT_COST"`
	ResetTokenTTL time.Duration `mapstructure:"RESET_TOKEN_TTL"`

	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	FrontendURL   string   `mapstructure:"FRONTEND_URL"`
	PublicBaseURL string   `mapstructure:"PUBLIC_BASE_URL"`

	StorageDir  string `mapstructure:"STORAGE_DIR"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3PublicURL string `mapstructure:"S3_PUBLIC_URL"`

	SQSQueueName   string `mapstructure:"SQS_QUEUE_NAME"`
	ReportWorkers  int    `mapstructure:"REPORT_WORKERS"`
	EmbeddedWorker bool   `mapstructure:"EMBEDDED_WORKER"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "MONGO_URI", "MONGO_DATABASE", "MONGO_TRANSACTIONS",
	"JWT_SECRET", "JWT_TTL", "BCRYPT_COST", "RESET_TOKEN_TTL",
	"CORS_ORIGINS", "FRONTEND_URL", "PUBLIC_BASE_URL",
	"STORAGE_DIR", "S3_BUCKET", "S3_PUBLIC_URL",
	"SQS_QUEUE_NAME", "REPORT_WORKERS", "EMBEDDED_WORKER",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM",
}

// Load reads configuration from the environment. The caller loads any .env
// file beforehand.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGO_DATABASE", "careconnect")
	v.SetDefault("MONGO_TRANSACTIONS", true)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("REPORT_WORKERS", 2)
	v.SetDefault("EMBEDDED_WORKER", true)
	v.SetDefault("KAFKA_TOPIC", "appointment-events")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "CareConnect <no-reply@careconnect.local>")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(decoded []string, raw string) []string {
	if len(decoded) == 0 && raw != "" {
		decoded = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(decoded))
	for _, s := range decoded {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server cannot run safely with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER is \"mongo\"")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER \"memory\" is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"mongo\" or \"memory\", got %q", c.StoreDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && (c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32) {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.ReportWorkers < 1 {
		return fmt.Errorf("REPORT_WORKERS must be at least 1")
	}
	if c.SMTPHost != "" && c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required when SMTP_HOST is set")
	}
	return nil
}
