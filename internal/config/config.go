package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	// Server
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" | "console"

	// Secrets
	InternalSharedSecret string `yaml:"-"`
	MistralAPIKey        string `yaml:"-"`
	EmbedAPIKey          string `yaml:"-"`

	// Limits
	MaxPDFBytes   int64 `yaml:"max_pdf_bytes"`
	MaxFormMemory int64 `yaml:"max_form_memory"`

	// Concurrency
	MaxConcurrentRequests int64 `yaml:"max_concurrent_requests"`
	MaxOCRConcurrent      int64 `yaml:"max_ocr_concurrent"`
	MaxPageWorkers        int   `yaml:"max_page_workers"` // per-document page extraction workers cap

	// Server timeouts
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// Request timeouts
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	InfoTimeout    time.Duration `yaml:"info_timeout"`
	AsyncTimeout   time.Duration `yaml:"async_timeout"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`

	// Poppler
	RasterTimeout time.Duration `yaml:"raster_timeout"`

	// rate limiting (per IP)
	RateLimitEvery time.Duration `yaml:"rate_limit_every"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`

	// housekeeping
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// health
	HealthDegradeRatio float64 `yaml:"health_degrade_ratio"`

	// http
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// Text layer / OCR routing
	MinTextDensity    float64 `yaml:"min_text_density"` // native chars per square inch
	MinWordsThreshold int     `yaml:"min_words_threshold"`
	OCREngine         string  `yaml:"ocr_engine"` // "tesseract" | "mistral" | "none"
	OCRLanguage       string  `yaml:"ocr_language"`
	OCRModel          string  `yaml:"ocr_model"`
	OCRDPI            int     `yaml:"ocr_dpi"`
	OCRRetryDPI       int     `yaml:"ocr_retry_dpi"`
	OCRMinChars       int     `yaml:"ocr_min_chars"`
	OCRMinConfidence  float64 `yaml:"ocr_min_confidence"`
	OCRMaxPixels      int     `yaml:"ocr_max_pixels"` // longest raster edge fed to the engine

	// Embeddings
	EmbedProvider  string        `yaml:"embed_provider"` // "http" | "hash" | "none"
	EmbedEndpoint  string        `yaml:"embed_endpoint"`
	EmbedModel     string        `yaml:"embed_model"`
	EmbedDim       int           `yaml:"embed_dim"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
	DuplicateScore float64       `yaml:"duplicate_score"`
	DatabaseURL    string        `yaml:"-"`

	// Async jobs
	RedisURL string        `yaml:"-"`
	JobTTL   time.Duration `yaml:"job_ttl"`
}

// Default returns the built-in configuration used when neither the config
// file nor the environment sets a value.
func Default() Config {
	return Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "json",

		MaxPDFBytes:   100 << 20,
		MaxFormMemory: 32 << 20,

		MaxConcurrentRequests: 15,
		MaxOCRConcurrent:      3,
		MaxPageWorkers:        8,

		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      190 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   20 * time.Second,

		ExtractTimeout: 170 * time.Second,
		InfoTimeout:    30 * time.Second,
		AsyncTimeout:   10 * time.Minute,
		SearchTimeout:  10 * time.Second,

		RasterTimeout: 30 * time.Second,

		RateLimitEvery: 600 * time.Millisecond,
		RateLimitBurst: 20,

		CleanupInterval: 5 * time.Minute,

		HealthDegradeRatio: 0.9,

		MaxHeaderBytes: 1 << 20,

		MinTextDensity:    0.2,
		MinWordsThreshold: 10,
		OCREngine:         "tesseract",
		OCRLanguage:       "eng",
		OCRModel:          "mistral-ocr-latest",
		OCRDPI:            200,
		OCRRetryDPI:       300,
		OCRMinChars:       40,
		OCRMinConfidence:  30,
		OCRMaxPixels:      4200,

		EmbedProvider:  "none",
		EmbedModel:     "sentence-transformers/all-MiniLM-L6-v2",
		EmbedDim:       384,
		EmbedTimeout:   15 * time.Second,
		DuplicateScore: 0.97,

		JobTTL: time.Hour,
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set) over the defaults,
// then environment variables over both.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("parse config file: %w", err)
		}
	}

	c.Port = envStr("PORT", c.Port)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)

	c.InternalSharedSecret = envStr("INTERNAL_SHARED_SECRET", "")
	c.MistralAPIKey = envStr("MISTRAL_API_KEY", "")
	c.EmbedAPIKey = envStr("EMBED_API_KEY", "")

	c.MaxPDFBytes = int64(envInt("MAX_PDF_BYTES", int(c.MaxPDFBytes)))
	c.MaxFormMemory = int64(envInt("MAX_FORM_MEMORY", int(c.MaxFormMemory)))

	c.MaxConcurrentRequests = int64(envInt("MAX_CONCURRENT_REQUESTS", int(c.MaxConcurrentRequests)))
	c.MaxOCRConcurrent = int64(envInt("MAX_OCR_CONCURRENT", int(c.MaxOCRConcurrent)))
	c.MaxPageWorkers = envInt("MAX_PAGE_WORKERS", c.MaxPageWorkers)

	c.ReadHeaderTimeout = envDur("READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = envDur("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = envDur("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = envDur("IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = envDur("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.ExtractTimeout = envDur("EXTRACT_TIMEOUT", c.ExtractTimeout)
	c.InfoTimeout = envDur("INFO_TIMEOUT", c.InfoTimeout)
	c.AsyncTimeout = envDur("ASYNC_TIMEOUT", c.AsyncTimeout)
	c.SearchTimeout = envDur("SEARCH_TIMEOUT", c.SearchTimeout)

	c.RasterTimeout = envDur("RASTER_TIMEOUT", c.RasterTimeout)

	c.RateLimitEvery = envDur("RATE_LIMIT_EVERY", c.RateLimitEvery)
	c.RateLimitBurst = envInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.CleanupInterval = envDur("CLEANUP_INTERVAL", c.CleanupInterval)
	c.HealthDegradeRatio = envFloat("HEALTH_DEGRADE_RATIO", c.HealthDegradeRatio)
	c.MaxHeaderBytes = envInt("MAX_HEADER_BYTES", c.MaxHeaderBytes)

	c.MinTextDensity = envFloat("MIN_TEXT_DENSITY", c.MinTextDensity)
	c.MinWordsThreshold = envInt("MIN_WORDS_THRESHOLD", c.MinWordsThreshold)
	c.OCREngine = strings.ToLower(envStr("OCR_ENGINE", c.OCREngine))
	c.OCRLanguage = envStr("OCR_LANG", c.OCRLanguage)
	c.OCRModel = envStr("OCR_MODEL", c.OCRModel)
	c.OCRDPI = envInt("OCR_DPI", c.OCRDPI)
	c.OCRRetryDPI = envInt("OCR_RETRY_DPI", c.OCRRetryDPI)
	c.OCRMinChars = envInt("OCR_MIN_CHARS", c.OCRMinChars)
	c.OCRMinConfidence = envFloat("OCR_MIN_CONFIDENCE", c.OCRMinConfidence)
	c.OCRMaxPixels = envInt("OCR_MAX_PIXELS", c.OCRMaxPixels)

	c.EmbedProvider = strings.ToLower(envStr("EMBED_PROVIDER", c.EmbedProvider))
	c.EmbedEndpoint = envStr("EMBED_ENDPOINT", c.EmbedEndpoint)
	c.EmbedModel = envStr("EMBED_MODEL", c.EmbedModel)
	c.EmbedDim = envInt("EMBED_DIM", c.EmbedDim)
	c.EmbedTimeout = envDur("EMBED_TIMEOUT", c.EmbedTimeout)
	c.DuplicateScore = envFloat("DUPLICATE_SCORE", c.DuplicateScore)
	c.DatabaseURL = envStr("DATABASE_URL", "")

	c.RedisURL = envStr("REDIS_URL", "")
	c.JobTTL = envDur("JOB_TTL", c.JobTTL)

	return c, nil
}

func (c Config) Validate() error {
	if s := strings.TrimSpace(c.InternalSharedSecret); s != "" && len(s) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	switch c.OCREngine {
	case "tesseract", "mistral", "none":
	default:
		return fmt.Errorf("OCR_ENGINE must be one of tesseract, mistral, none (got %q)", c.OCREngine)
	}
	if c.OCREngine == "mistral" && strings.TrimSpace(c.MistralAPIKey) == "" {
		return fmt.Errorf("OCR_ENGINE=mistral requires MISTRAL_API_KEY")
	}
	if c.OCRRetryDPI < c.OCRDPI {
		return fmt.Errorf("OCR_RETRY_DPI (%d) must not be lower than OCR_DPI (%d)", c.OCRRetryDPI, c.OCRDPI)
	}
	switch c.EmbedProvider {
	case "none", "hash":
	case "http":
		if strings.TrimSpace(c.EmbedEndpoint) == "" {
			return fmt.Errorf("EMBED_PROVIDER=http requires EMBED_ENDPOINT")
		}
	default:
		return fmt.Errorf("EMBED_PROVIDER must be one of http, hash, none (got %q)", c.EmbedProvider)
	}
	if c.DuplicateScore <= 0 || c.DuplicateScore > 1 {
		return fmt.Errorf("DUPLICATE_SCORE must be in (0, 1]")
	}
	return nil
}

// AuthEnabled reports whether internal endpoints require X-Internal-Auth.
func (c Config) AuthEnabled() bool {
	return strings.TrimSpace(c.InternalSharedSecret) != ""
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
