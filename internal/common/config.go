package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	LLM       LLMConfig
	OCR       OCRConfig
	Pipeline  PipelineConfig
	Progress  ProgressConfig
	Reference ReferenceConfig
}

// DatabaseConfig holds result-store configuration. A postgres:// DSN selects
// the pgx driver; anything else is treated as a SQLite path.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// LLMConfig holds extraction-capability configuration.
type LLMConfig struct {
	Model          string
	EmbeddingModel string
	APIKey         string
	BaseURL        string
	Temperature    float32
	Timeout        time.Duration
}

// OCRConfig holds document-reader configuration.
type OCRConfig struct {
	TessdataDir string
	Language    string
	// MinTextDensity is the minimum number of characters a page's text
	// layer must carry before OCR is considered unnecessary.
	MinTextDensity int
}

// PipelineConfig centralizes every tunable threshold. Stage logic reads
// these values; none of them is hard-coded in a stage.
type PipelineConfig struct {
	Workers             int
	AutoAcceptThreshold float64
	MatchThreshold      float64
	OutlierStdDevs      float64
	MinVendorSamples    int
	SimilarityThreshold float64
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	StageTimeout        time.Duration
}

// ProgressConfig holds progress-sink configuration.
type ProgressConfig struct {
	WebsocketURL      string
	HeartbeatInterval time.Duration
	ReconnectMax      int
}

// ReferenceConfig points at the vendor/PO reference dataset.
type ReferenceConfig struct {
	Path string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		LLM: LLMConfig{
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			Temperature:    getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		OCR: OCRConfig{
			TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
			Language:       getEnv("OCR_LANGUAGE", "eng"),
			MinTextDensity: getEnvAsInt("OCR_MIN_TEXT_DENSITY", 32),
		},
		Pipeline: PipelineConfig{
			Workers:             getEnvAsInt("PIPELINE_WORKERS", 4),
			AutoAcceptThreshold: getEnvAsFloat64("AUTO_ACCEPT_THRESHOLD", 0.90),
			MatchThreshold:      getEnvAsFloat64("PO_MATCH_THRESHOLD", 0.85),
			OutlierStdDevs:      getEnvAsFloat64("OUTLIER_STDDEV_MULTIPLE", 2.0),
			MinVendorSamples:    getEnvAsInt("OUTLIER_MIN_SAMPLES", 5),
			SimilarityThreshold: getEnvAsFloat64("FALLBACK_SIMILARITY_THRESHOLD", 0.75),
			RetryAttempts:       getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:      getEnvAsDuration("STORE_RETRY_BASE_DELAY", 1*time.Second),
			StageTimeout:        getEnvAsDuration("STAGE_TIMEOUT", 3*time.Minute),
		},
		Progress: ProgressConfig{
			WebsocketURL:      getEnv("PROGRESS_WS_URL", ""),
			HeartbeatInterval: getEnvAsDuration("PROGRESS_HEARTBEAT", 15*time.Second),
			ReconnectMax:      getEnvAsInt("PROGRESS_RECONNECT_MAX", 5),
		},
		Reference: ReferenceConfig{
			Path: getEnv("REFERENCE_DATA_PATH", "data/vendor_data.csv"),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Pipeline.AutoAcceptThreshold <= 0 || c.Pipeline.AutoAcceptThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "AUTO_ACCEPT_THRESHOLD must be in (0,1]", ErrInvalidInput)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
