package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	ClassifierURL        string `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeoutSec int    `mapstructure:"CLASSIFIER_TIMEOUT_SEC"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"` // "s3" or "memory"
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PublicURL string `mapstructure:"S3_PUBLIC_URL"`

	BrevoAPIKey string `mapstructure:"BREVO_API_KEY"`
	SenderEmail string `mapstructure:"SENDER_EMAIL"`
	SenderName  string `mapstructure:"SENDER_NAME"`

	PayPalClientID string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalSecret   string `mapstructure:"PAYPAL_SECRET"`
	PayPalLive     bool   `mapstructure:"PAYPAL_LIVE"`

	ReportsDir string `mapstructure:"REPORTS_DIR"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLASSIFIER_TIMEOUT_SEC", 30)
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("S3_BUCKET", "xrays")
	v.SetDefault("SENDER_NAME", "DeepTB")
	v.SetDefault("REPORTS_DIR", "./reports")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
		"JWT_SECRET",
		"CLASSIFIER_URL", "CLASSIFIER_TIMEOUT_SEC",
		"BLOB_BACKEND", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_USE_SSL", "S3_PUBLIC_URL",
		"BREVO_API_KEY", "SENDER_EMAIL", "SENDER_NAME",
		"PAYPAL_CLIENT_ID", "PAYPAL_SECRET", "PAYPAL_LIVE",
		"REPORTS_DIR", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET not set, using an insecure development secret")
		cfg.JWTSecret = "deeptb-dev-secret"
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ClassifierTimeout returns the per-request budget for the external scorer.
func (c *Config) ClassifierTimeout() time.Duration {
	if c.ClassifierTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ClassifierTimeoutSec) * time.Second
}

// Validate checks that the configuration is safe to run. Outside development
// the signing secret and the classifier endpoint must be set; choosing the s3
// blob backend requires its endpoint and credentials in every environment.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		if c.ClassifierURL == "" {
			return fmt.Errorf("CLASSIFIER_URL is required outside development")
		}
	}

	switch c.BlobBackend {
	case "s3":
		// Selecting s3 is always explicit, so its settings are required in
		// every environment.
		if c.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when BLOB_BACKEND is \"s3\"")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when BLOB_BACKEND is \"s3\"")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("BLOB_BACKEND \"memory\" is not allowed in production")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"s3\" or \"memory\", got %q", c.BlobBackend)
	}

	if c.IsProduction() && c.BrevoAPIKey == "" {
		return fmt.Errorf("BREVO_API_KEY is required in production")
	}
	if c.BrevoAPIKey != "" && c.SenderEmail == "" {
		return fmt.Errorf("SENDER_EMAIL is required when BREVO_API_KEY is set")
	}

	return nil
}
