package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/agrosense/agrosense/internal/lifecycle"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AgroSense AgroSenseConfig
	Lifecycle LifecycleConfig
	Session   SessionConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	AI        AIConfig
	MongoDB   MongoDBConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig tunes the zap logger.
type LogConfig struct {
	Level string
}

// AgroSenseConfig points at the AgroSense REST API, the system of record.
type AgroSenseConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LifecycleConfig holds the batch lifecycle rules.
type LifecycleConfig struct {
	StagePolicy       string
	Timezone          string
	PredictionTimeout time.Duration
	SweepConcurrency  int
}

// SessionConfig selects where the API token and role are stored. An empty
// RedisAddr keeps them in process memory.
type SessionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	OperatorID    string
}

// Enabled reports whether outbound WhatsApp messaging is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the roster export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule      string
	ExpirySweepCron   string
	UpcomingHarvestIn int
}

// AIConfig holds settings for LLM providers.
type AIConfig struct {
	AnthropicKey string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	agroTimeout, err := getenvDuration("AGROSENSE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	predictionTimeout, err := getenvDuration("PREDICTION_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	sweepConcurrency, err := getenvInt("SWEEP_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	upcoming, err := getenvInt("UPCOMING_HARVEST_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		AgroSense: AgroSenseConfig{
			BaseURL: getenvWithDefault("AGROSENSE_API_URL", "http://localhost:5000"),
			Timeout: agroTimeout,
		},
		Lifecycle: LifecycleConfig{
			StagePolicy:       getenvWithDefault("STAGE_POLICY", "lateral"),
			Timezone:          getenvWithDefault("TIMEZONE", "Asia/Kolkata"),
			PredictionTimeout: predictionTimeout,
			SweepConcurrency:  sweepConcurrency,
		},
		Session: SessionConfig{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			OperatorID:    os.Getenv("WHATSAPP_OPERATOR_ID"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule:      getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			ExpirySweepCron:   getenvWithDefault("EXPIRY_SWEEP_CRON", "@hourly"),
			UpcomingHarvestIn: upcoming,
		},
		AI: AIConfig{
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "agrosense"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
// Integrations without credentials stay disabled instead of failing.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.AgroSense.BaseURL == "" {
		return errors.New("AGROSENSE_API_URL must be provided")
	}

	if _, err := lifecycle.ParsePolicy(c.Lifecycle.StagePolicy); err != nil {
		return fmt.Errorf("STAGE_POLICY must be lateral or forward: %w", err)
	}

	if _, err := time.LoadLocation(c.Lifecycle.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Lifecycle.PredictionTimeout <= 0 {
		return errors.New("PREDICTION_TIMEOUT must be positive")
	}

	if c.Lifecycle.SweepConcurrency <= 0 {
		return errors.New("SWEEP_CONCURRENCY must be positive")
	}

	if c.WhatsApp.Enabled() {
		if c.WhatsApp.VerifyToken == "" {
			return errors.New("META_VERIFY_TOKEN must be provided")
		}
		if c.WhatsApp.OperatorID == "" {
			return errors.New("WHATSAPP_OPERATOR_ID must be provided")
		}
		if c.WhatsApp.BaseURL == "" {
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		}
		if c.WhatsApp.APIVersion == "" {
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if c.Reporting.ExpirySweepCron == "" {
		return errors.New("EXPIRY_SWEEP_CRON must be provided")
	}

	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	return nil
}

// Location resolves the configured timezone.
func (c LifecycleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
