package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the automation engines behind a scrape session.
type BrowserConfig struct {
	// Engines is the engine preference order. The first entry is tried
	// first; the rest are fallbacks. Known: "rod", "chromedp", "http".
	Engines []string // default: ["rod", "chromedp"]

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// Stealth injects anti-detection JS into rod pages.
	Stealth bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// PageLoadTimeout bounds a single navigation.
	PageLoadTimeout time.Duration // default: 30s

	// NetworkIdleTimeout bounds the best-effort network idle wait.
	NetworkIdleTimeout time.Duration // default: 10s

	// MinDelay and MaxDelay bound the randomized pre-navigation pause.
	MinDelay time.Duration // default: 1s
	MaxDelay time.Duration // default: 3s

	// UserAgent is sent by every engine.
	UserAgent string

	ViewportWidth  int // default: 1366
	ViewportHeight int // default: 768

	// BlockResources lists rod resource types aborted before download:
	// "Image", "Stylesheet", "Font", "Media", "Script".
	BlockResources []string // default: ["Image", "Font", "Media"]

	// BlockAds aborts rod requests to known ad and tracking hosts.
	BlockAds bool // default: true

	// EngineMemoryTTL is how long a host keeps its fallback engine as the
	// first choice.
	EngineMemoryTTL time.Duration // default: 24h
}

// ScraperConfig controls scraping behavior.
type ScraperConfig struct {
	// SourcesFile is the YAML file listing content sources.
	SourcesFile string // default: "sources.yaml"

	// DefaultMaxItems caps items per listing page when a source sets none.
	DefaultMaxItems int // default: 20
}

// EmbeddingConfig controls the embedding model and the vector index.
type EmbeddingConfig struct {
	// Provider selects the client: "ollama", "openai" or "hash".
	Provider string // default: "ollama"

	// Endpoint is the base URL of the embedding server.
	Endpoint string // default: "http://localhost:11434"

	// Model is the embedding model name.
	Model string // default: "all-minilm"

	// Dimension is the expected vector size. 0 means auto-detect.
	Dimension int

	// BatchSize is the number of texts embedded per call during rebuild.
	BatchSize int // default: 50

	// BodyPrefix is the number of body characters included in the
	// embedding input.
	BodyPrefix int // default: 1000

	// IndexDir holds the vectors and metadata files.
	IndexDir string // default: "data/index"

	// Timeout per embedding request.
	Timeout time.Duration // default: 60s
}

// LLMConfig controls the local generation model used by the chat endpoint.
type LLMConfig struct {
	Endpoint    string        // default: "http://localhost:11434"
	Model       string        // default: "llama3"
	TopK        int           // default: 3
	MaxTokens   int           // default: 512
	Temperature float64       // default: 0.7
	Timeout     time.Duration // default: 120s
}

// StoreConfig controls the SQLite content store.
type StoreConfig struct {
	Path string // default: "data/uniassist.db"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the query embedding cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached query vectors.
	MaxEntries int // default: 1000

	// TTL is how long a cached query vector stays valid.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls refresh notifications. Empty URL disables them.
type WebhookConfig struct {
	URL    string
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("UNIASSIST_HOST", "0.0.0.0"),
			Port: envIntOr("UNIASSIST_PORT", 8080),
			Mode: envOr("UNIASSIST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Engines:            envSliceOr("UNIASSIST_ENGINES", []string{"rod", "chromedp"}),
			Headless:           envBoolOr("UNIASSIST_HEADLESS", true),
			Stealth:            envBoolOr("UNIASSIST_STEALTH", false),
			NoSandbox:          envBoolOr("UNIASSIST_NO_SANDBOX", false),
			BrowserBin:         os.Getenv("UNIASSIST_BROWSER_BIN"),
			PageLoadTimeout:    envDurationOr("UNIASSIST_PAGE_LOAD_TIMEOUT", 30*time.Second),
			NetworkIdleTimeout: envDurationOr("UNIASSIST_NETWORK_IDLE_TIMEOUT", 10*time.Second),
			MinDelay:           envDurationOr("UNIASSIST_MIN_DELAY", 1*time.Second),
			MaxDelay:           envDurationOr("UNIASSIST_MAX_DELAY", 3*time.Second),
			UserAgent:          envOr("UNIASSIST_USER_AGENT", DefaultUserAgent),
			ViewportWidth:      envIntOr("UNIASSIST_VIEWPORT_WIDTH", 1366),
			ViewportHeight:     envIntOr("UNIASSIST_VIEWPORT_HEIGHT", 768),
			BlockResources:     envSliceOr("UNIASSIST_BLOCK_RESOURCES", []string{"Image", "Font", "Media"}),
			BlockAds:           envBoolOr("UNIASSIST_BLOCK_ADS", true),
			EngineMemoryTTL:    envDurationOr("UNIASSIST_ENGINE_MEMORY_TTL", 24*time.Hour),
		},
		Scraper: ScraperConfig{
			SourcesFile:     envOr("UNIASSIST_SOURCES_FILE", "sources.yaml"),
			DefaultMaxItems: envIntOr("UNIASSIST_MAX_ITEMS", 20),
		},
		Embedding: EmbeddingConfig{
			Provider:   envOr("UNIASSIST_EMBED_PROVIDER", "ollama"),
			Endpoint:   envOr("UNIASSIST_EMBED_ENDPOINT", "http://localhost:11434"),
			Model:      envOr("UNIASSIST_EMBED_MODEL", "all-minilm"),
			Dimension:  envIntOr("UNIASSIST_EMBED_DIMENSION", 0),
			BatchSize:  envIntOr("UNIASSIST_EMBED_BATCH_SIZE", 50),
			BodyPrefix: envIntOr("UNIASSIST_EMBED_BODY_PREFIX", 1000),
			IndexDir:   envOr("UNIASSIST_INDEX_DIR", "data/index"),
			Timeout:    envDurationOr("UNIASSIST_EMBED_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			Endpoint:    envOr("UNIASSIST_LLM_ENDPOINT", "http://localhost:11434"),
			Model:       envOr("UNIASSIST_LLM_MODEL", "llama3"),
			TopK:        envIntOr("UNIASSIST_LLM_TOP_K", 3),
			MaxTokens:   envIntOr("UNIASSIST_LLM_MAX_TOKENS", 512),
			Temperature: envFloatOr("UNIASSIST_LLM_TEMPERATURE", 0.7),
			Timeout:     envDurationOr("UNIASSIST_LLM_TIMEOUT", 120*time.Second),
		},
		Store: StoreConfig{
			Path: envOr("UNIASSIST_DB_PATH", "data/uniassist.db"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("UNIASSIST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("UNIASSIST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("UNIASSIST_RATE_RPS", 5.0),
			Burst:             envIntOr("UNIASSIST_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("UNIASSIST_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("UNIASSIST_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("UNIASSIST_LOG_LEVEL", "info"),
			Format: envOr("UNIASSIST_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("UNIASSIST_WEBHOOK_URL"),
			Secret: os.Getenv("UNIASSIST_WEBHOOK_SECRET"),
		},
	}
}

// DefaultUserAgent is a desktop Chrome UA string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
