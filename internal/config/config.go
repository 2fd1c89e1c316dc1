// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the conversation database path, rate
// limiting, session bounds, provider retry policy, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "chat-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig bounds the per-user sliding admission window.
type RateLimitConfig struct {
	MaxRequests int           // N requests admitted per window
	Window      time.Duration // W, trailing window length
}

// SessionConfig bounds per-user conversation memory.
type SessionConfig struct {
	MaxMessages int           // K, hard cap on stored messages per user
	TTL         time.Duration // idle sessions older than this read as empty
	Backend     string        // "memory" or "redis"
}

// RedisConfig carries connection settings for the Redis session backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig configures the model provider client and its retry policy.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Timeout     time.Duration // per-attempt hard timeout
	MaxAttempts int           // M, attempt budget for transient failures
	BaseDelay   time.Duration // first backoff step
	MaxDelay    time.Duration // backoff cap
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must cover a full provider retry budget
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Conversation log storage
	DBPath string // SQLite path

	// Prompting
	SystemPrompt   string // fixed preamble sent ahead of session context
	MaxPromptRunes int    // reject longer user messages up front

	// Core quotas and bounds
	RateLimit RateLimitConfig
	Session   SessionConfig
	Redis     RedisConfig
	Provider  ProviderConfig

	// Access control; empty allowlist admits every user
	AllowedUsers []string
	AdminUsers   []string

	// Edge HTTP limiter (token bucket, per user/IP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Readiness: /ready fails when no provider success within this window
	ReadinessWindow time.Duration

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// defaultSystemPrompt is sent as the system role ahead of session context.
const defaultSystemPrompt = "You are a helpful AI assistant. Keep responses " +
	"concise but informative. Use markdown formatting when appropriate. " +
	"If you need clarification, ask follow-up questions."

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 2*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "chat.db"),

		// Prompting
		SystemPrompt:   getenv("SYSTEM_PROMPT", defaultSystemPrompt),
		MaxPromptRunes: getint("MAX_PROMPT_RUNES", 2000),

		// Core quotas and bounds
		RateLimit: RateLimitConfig{
			MaxRequests: getint("RATE_LIMIT_MAX", 10),
			Window:      getdur("RATE_LIMIT_WINDOW", 60*time.Second),
		},
		Session: SessionConfig{
			MaxMessages: getint("SESSION_MAX_MESSAGES", 20),
			TTL:         getdur("SESSION_TTL", 30*time.Minute),
			Backend:     strings.ToLower(getenv("SESSION_BACKEND", "memory")),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			APIKey:      getenv("OPENAI_API_KEY", ""),
			BaseURL:     getenv("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			Model:       getenv("AI_MODEL", "gpt-4o-mini"),
			MaxTokens:   getint("MAX_TOKENS", 1000),
			Timeout:     getdur("PROVIDER_TIMEOUT", 30*time.Second),
			MaxAttempts: getint("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getdur("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getdur("RETRY_MAX_DELAY", 10*time.Second),
		},

		// Access control
		AllowedUsers: splitCSV(getenv("ALLOWED_USERS", "")),
		AdminUsers:   splitCSV(getenv("ADMIN_USERS", "")),

		// Edge limiter
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Readiness
		ReadinessWindow: getdur("READINESS_WINDOW", 5*time.Minute),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "chat-relay"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxPromptRunes <= 0 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be > 0")
	}
	if cfg.RateLimit.MaxRequests < 1 {
		return cfg, errors.New("RATE_LIMIT_MAX must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("RATE_LIMIT_WINDOW must be > 0")
	}
	if cfg.Session.MaxMessages < 2 {
		// a turn is two messages; a smaller cap could never hold one
		return cfg, errors.New("SESSION_MAX_MESSAGES must be >= 2")
	}
	if cfg.Session.TTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	switch cfg.Session.Backend {
	case "memory", "redis":
	default:
		return cfg, errors.New("SESSION_BACKEND must be one of: memory, redis")
	}
	if cfg.Provider.Timeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.Provider.MaxAttempts < 1 {
		return cfg, errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Provider.BaseDelay <= 0 || cfg.Provider.MaxDelay < cfg.Provider.BaseDelay {
		return cfg, errors.New("RETRY_BASE_DELAY must be > 0 and <= RETRY_MAX_DELAY")
	}
	if cfg.Provider.MaxTokens <= 0 {
		return cfg, errors.New("MAX_TOKENS must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.ReadinessWindow <= 0 {
		return cfg, errors.New("READINESS_WINDOW must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// IsAdmin reports whether userID appears in the configured admin list.
func (c Config) IsAdmin(userID string) bool {
	for _, u := range c.AdminUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
