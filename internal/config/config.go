// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database, credit, payment, object store, inference, recovery and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
	Environment string  // copied from APP_ENV
}

// DBConfig selects the database.
type DBConfig struct {
	Driver       string // sqlite|postgres
	Path         string // SQLite path
	URL          string // PostgreSQL DSN
	MaxOpenConns int
}

// CreditConfig holds ledger policy.
type CreditConfig struct {
	FreeBonus         int64           // FREE_BONUS_CREDITS granted on first balance read
	Packs             map[int64]int64 // CREDIT_PACKS: paid amount in cents -> credits
	ValidatorFreeUses int64           // VALIDATOR_FREE_USES
}

// PaymentConfig configures webhook verification.
type PaymentConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// StorageConfig configures the object store.
type StorageConfig struct {
	Driver          string // s3|memory
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	UploadURLTTL    time.Duration
}

// InferenceConfig configures the AI provider.
type InferenceConfig struct {
	APIKey        string
	AnalysisModel string
	ImageModel    string
	Timeout       time.Duration
}

// RecoveryConfig configures the recovery sweep.
type RecoveryConfig struct {
	ReminderAfter        time.Duration // protected reports older than this get one reminder
	StaleProcessingAfter time.Duration // processing reports older than this revert to draft
	SweepInterval        time.Duration // 0 disables the in-process sweeper
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s, analysis calls are slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test
	Env               string        // development|staging|production

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB        DBConfig
	Credits   CreditConfig
	Payment   PaymentConfig
	Storage   StorageConfig
	Inference InferenceConfig
	Recovery  RecoveryConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Stricter limit for routes that call the inference provider
	CostlyRPS   float64
	CostlyBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// IsProduction reports whether the deployment must fail closed.
func (c Config) IsProduction() bool { return c.Env == "production" }

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
	packs, packErr := parsePacks(getenv("CREDIT_PACKS", "499:1,999:3,1999:10"))

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		Env:               strings.ToLower(getenv("APP_ENV", "development")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "app.db"),
			URL:          getenv("DATABASE_URL", ""),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
		},
		Credits: CreditConfig{
			FreeBonus:         int64(getint("FREE_BONUS_CREDITS", 1)),
			Packs:             packs,
			ValidatorFreeUses: int64(getint("VALIDATOR_FREE_USES", 3)),
		},
		Payment: PaymentConfig{
			WebhookSecret: getenv("PAYMENT_WEBHOOK_SECRET", ""),
			Tolerance:     getdur("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(getenv("STORAGE_DRIVER", "memory")),
			Bucket:          getenv("S3_BUCKET", ""),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			Region:          getenv("S3_REGION", "auto"),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getenv("STORAGE_PUBLIC_BASE_URL", ""),
			UploadURLTTL:    getdur("UPLOAD_URL_TTL", 15*time.Minute),
		},
		Inference: InferenceConfig{
			APIKey:        getenv("GEMINI_API_KEY", ""),
			AnalysisModel: getenv("ANALYSIS_MODEL", "gemini-1.5-flash"),
			ImageModel:    getenv("IMAGE_MODEL", "gemini-2.0-flash-exp-image-generation"),
			Timeout:       getdur("INFERENCE_TIMEOUT", 90*time.Second),
		},
		Recovery: RecoveryConfig{
			ReminderAfter:        getdur("RECOVERY_REMINDER_AFTER", 24*time.Hour),
			StaleProcessingAfter: getdur("STALE_PROCESSING_AFTER", 10*time.Minute),
			SweepInterval:        getdur("SWEEP_INTERVAL", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CostlyRPS:   getfloat("COSTLY_RATE_RPS", 0.5),
		CostlyBurst: getint("COSTLY_RATE_BURST", 3),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "color-report-engine"),
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
	if cfg.Env == "prod" {
		cfg.Env = "production"
	}
	cfg.OTEL.Environment = cfg.Env

	// --- validation ---
	if packErr != nil {
		return cfg, packErr
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.Env {
	case "development", "staging", "production":
	default:
		return cfg, errors.New("APP_ENV must be one of: development, staging, production")
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
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Credits.FreeBonus < 0 || cfg.Credits.ValidatorFreeUses < 0 {
		return cfg, errors.New("FREE_BONUS_CREDITS and VALIDATOR_FREE_USES must be >= 0")
	}
	if cfg.IsProduction() && cfg.Payment.WebhookSecret == "" {
		return cfg, errors.New("PAYMENT_WEBHOOK_SECRET is required in production")
	}
	switch cfg.Storage.Driver {
	case "memory":
		if cfg.IsProduction() {
			return cfg, errors.New("STORAGE_DRIVER=memory is not allowed in production")
		}
	case "s3":
		if cfg.Storage.Bucket == "" {
			return cfg, errors.New("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: s3, memory")
	}
	if cfg.Storage.UploadURLTTL <= 0 || cfg.Inference.Timeout <= 0 {
		return cfg, errors.New("UPLOAD_URL_TTL and INFERENCE_TIMEOUT must be > 0")
	}
	if cfg.Recovery.ReminderAfter <= 0 || cfg.Recovery.StaleProcessingAfter <= 0 || cfg.Recovery.SweepInterval < 0 {
		return cfg, errors.New("recovery durations must be positive (SWEEP_INTERVAL may be 0)")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.CostlyRPS < 0 || cfg.CostlyBurst < 1 {
		return cfg, errors.New("COSTLY_RATE_RPS must be >= 0 and COSTLY_RATE_BURST >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// parsePacks reads "amount_cents:credits" pairs.
func parsePacks(s string) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, item := range splitCSV(s) {
		a, c, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("CREDIT_PACKS entry %q must be amount_cents:credits", item)
		}
		amount, err1 := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		credits, err2 := strconv.ParseInt(strings.TrimSpace(c), 10, 64)
		if err1 != nil || err2 != nil || amount <= 0 || credits <= 0 {
			return nil, fmt.Errorf("CREDIT_PACKS entry %q must hold positive integers", item)
		}
		if _, dup := out[amount]; dup {
			return nil, fmt.Errorf("CREDIT_PACKS amount %d listed twice", amount)
		}
		out[amount] = credits
	}
	if len(out) == 0 {
		return nil, errors.New("CREDIT_PACKS must define at least one pack")
	}
	return out, nil
}

// PackAmounts returns the configured pack prices in ascending order.
func (c CreditConfig) PackAmounts() []int64 {
	out := make([]int64, 0, len(c.Packs))
	for a := range c.Packs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
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
