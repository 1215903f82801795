package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ProviderConfig holds credentials and model for one inference engine.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AIConfig selects the inference engine used to describe media.
type AIConfig struct {
	Engine    string // "gemini"|"openai"|"anthropic"
	Gemini    ProviderConfig
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	MaxTokens int
}

// UploadConfig bounds what the encoder accepts.
type UploadConfig struct {
	MaxBytes int64
	// BodyLimit caps the raw request body so oversized files can still be
	// measured and rejected with a precise message.
	BodyLimit int64
}

// ProgressConfig drives the simulated progress indicator.
type ProgressConfig struct {
	Tick    time.Duration
	Ceiling float64
	Step    float64
}

// SessionConfig defines session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// RedisConfig is optional; an empty URL disables the status mirror.
type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

// S3Config is optional; an empty bucket disables the S3 file source.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// HTTPConfig defines the listening server.
type HTTPConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	AI       AIConfig
	Upload   UploadConfig
	Progress ProgressConfig
	Session  SessionConfig
	Redis    RedisConfig
	S3       S3Config
	HTTP     HTTPConfig
}

const mib = 1024 * 1024

// Load reads an optional .env file and then the environment.
func Load(files ...string) Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/videoprompt.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_videoprompt",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Inference engine; API_KEY is accepted as the Gemini key for compatibility.
	cfg.AI = AIConfig{
		Engine: strings.ToLower(getEnv("AI_ENGINE", "gemini")),
		Gemini: ProviderConfig{
			APIKey:  getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
		},
		OpenAI: ProviderConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4.1"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Anthropic: ProviderConfig{
			APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			Model:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet"),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
		},
		MaxTokens: parseInt(getEnv("AI_MAX_TOKENS", "2048"), 2048),
	}

	maxMB := parseFloat(getEnv("MAX_UPLOAD_MB", "20"), 20)
	if maxMB <= 0 {
		maxMB = 20
	}
	cfg.Upload = UploadConfig{
		MaxBytes: int64(maxMB * mib),
	}
	cfg.Upload.BodyLimit = int64(parseFloat(getEnv("MAX_UPLOAD_BODY_MB", ""), maxMB*4) * mib)
	if cfg.Upload.BodyLimit < cfg.Upload.MaxBytes {
		cfg.Upload.BodyLimit = cfg.Upload.MaxBytes
	}

	cfg.Progress = ProgressConfig{
		Tick:    parseDuration(getEnv("PROGRESS_TICK", "400ms"), 400*time.Millisecond),
		Ceiling: parseFloat(getEnv("PROGRESS_CEILING", "95"), 95),
		Step:    parseFloat(getEnv("PROGRESS_STEP", "10"), 10),
	}
	if cfg.Progress.Ceiling <= 0 || cfg.Progress.Ceiling >= 100 {
		cfg.Progress.Ceiling = 95
	}

	cfg.Session = SessionConfig{
		IdleTTL:       parseDuration(getEnv("SESSION_IDLE_TTL", "30m"), 30*time.Minute),
		SweepInterval: parseDuration(getEnv("SESSION_SWEEP_INTERVAL", "1m"), time.Minute),
	}

	cfg.Redis = RedisConfig{
		URL:       getEnv("REDIS_URL", ""),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "1h"), time.Hour),
	}

	cfg.S3 = S3Config{
		Bucket:          getEnv("AWS_S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.HTTP = HTTPConfig{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	return cfg
}

// Provider returns the settings of the selected engine.
func (c AIConfig) Provider() ProviderConfig {
	switch c.Engine {
	case "openai":
		return c.OpenAI
	case "anthropic":
		return c.Anthropic
	default:
		return c.Gemini
	}
}

// MaxUploadMB reports the upload cap in megabytes for user-facing text.
func (c UploadConfig) MaxUploadMB() float64 { return float64(c.MaxBytes) / mib }

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
