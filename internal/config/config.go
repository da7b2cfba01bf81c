package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DocsFolder       string        `mapstructure:"DOCS_FOLDER"`
	IngestWorkers    int           `mapstructure:"INGEST_WORKERS"`
	OllamaURL        string        `mapstructure:"OLLAMA_URL"`
	ModelName        string        `mapstructure:"MODEL_NAME"`
	ModelNumCtx      int           `mapstructure:"MODEL_NUM_CTX"`
	ModelTemperature float64       `mapstructure:"MODEL_TEMPERATURE"`
	LLMTimeout       time.Duration `mapstructure:"LLM_TIMEOUT"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	MaxUploadSize    string        `mapstructure:"MAX_UPLOAD_SIZE"`
	AskRateLimit     float64       `mapstructure:"ASK_RATE_LIMIT"`
	AskRateBurst     int           `mapstructure:"ASK_RATE_BURST"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"DOCS_FOLDER",
	"INGEST_WORKERS",
	"OLLAMA_URL",
	"MODEL_NAME",
	"MODEL_NUM_CTX",
	"MODEL_TEMPERATURE",
	"LLM_TIMEOUT",
	"AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
	"MAX_UPLOAD_SIZE",
	"ASK_RATE_LIMIT",
	"ASK_RATE_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DOCS_FOLDER", "./ccda")
	v.SetDefault("INGEST_WORKERS", 4)
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("MODEL_NAME", "mistral-nemo")
	v.SetDefault("MODEL_NUM_CTX", 32768)
	v.SetDefault("MODEL_TEMPERATURE", 0.0)
	v.SetDefault("LLM_TIMEOUT", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAX_UPLOAD_SIZE", "10M")
	v.SetDefault("ASK_RATE_LIMIT", 1.0)
	v.SetDefault("ASK_RATE_BURST", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
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

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development): API authentication is disabled.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside
// development an AUTH_SIGNING_KEY is required because every record endpoint
// serves patient data.
func (c *Config) Validate() error {
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", c.IngestWorkers)
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be between 0 and 2, got %g", c.ModelTemperature)
	}
	if c.ModelNumCtx <= 0 {
		return fmt.Errorf("MODEL_NUM_CTX must be positive, got %d", c.ModelNumCtx)
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL is required")
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV is %q", c.Env)
	}
	if c.AskRateLimit <= 0 || c.AskRateBurst <= 0 {
		return fmt.Errorf("ASK_RATE_LIMIT and ASK_RATE_BURST must be positive")
	}
	if _, err := ParseSize(c.MaxUploadSize); err != nil {
		return fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	return nil
}

// ParseSize parses a human-readable size ("512K", "10M", "1G" or a bare
// byte count).
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
	}
	s = strings.TrimRight(s, "GMKB")

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
