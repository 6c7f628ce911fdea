// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage backend: memory, postgres or mongo
	StoreDriver   string `koanf:"store_driver"`
	DatabaseURL   string `koanf:"database_url"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// Redis backs pending summaries and rate limits when set
	RedisURL string `koanf:"redis_url"`

	// S3-compatible object storage (S3, R2, MinIO)
	S3Endpoint        string `koanf:"s3_endpoint"`
	S3Region          string `koanf:"s3_region"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`
	S3PublicBaseURL   string `koanf:"s3_public_base_url"`
	AudioBucket       string `koanf:"audio_bucket"`
	ImageBucket       string `koanf:"image_bucket"`
	MaxUploadSizeMB   int    `koanf:"max_upload_size_mb"`

	// Speech to text
	WhisperURL             string        `koanf:"whisper_url"`
	AssemblyAIURL          string        `koanf:"assemblyai_url"`
	AssemblyAIAPIKey       string        `koanf:"assemblyai_api_key"`
	TranscriptPollInterval time.Duration `koanf:"transcript_poll_interval"`
	TranscriptMaxWait      time.Duration `koanf:"transcript_max_wait"`

	// Translation
	OpenAIAPIKey      string `koanf:"openai_api_key"`
	OpenAIModel       string `koanf:"openai_model"`
	OpenAIBaseURL     string `koanf:"openai_base_url"`
	TranslationPolicy string `koanf:"translation_policy"`

	// Domain tuning
	BadgeAward         int           `koanf:"badge_award"`
	NearbyRadiusMeters float64       `koanf:"nearby_radius_meters"`
	GeoMatchTolerance  float64       `koanf:"geo_match_tolerance"`
	SummaryTTL         time.Duration `koanf:"summary_ttl"`
	SanitizeImages     bool          `koanf:"sanitize_images"`

	// Rate limiting of POST /spots and POST /audiotitle
	RateLimitSubmitPerMinute int `koanf:"rate_limit_submit_per_minute"`

	// Browser origins allowed by CORS
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporterType string  `koanf:"otel_exporter_type"`
	TracingOTLPEndpoint string  `koanf:"otel_exporter_otlp_endpoint"`
	TracingSampleRate   float64 `koanf:"tracing_sample_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidStoreDriver       = errors.New("STORE_DRIVER must be memory, postgres or mongo")
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
	ErrMissingMongoURI          = errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
	ErrMissingS3Endpoint        = errors.New("S3_ENDPOINT is required")
	ErrMissingS3AccessKeyID     = errors.New("S3_ACCESS_KEY_ID is required")
	ErrMissingS3SecretAccessKey = errors.New("S3_SECRET_ACCESS_KEY is required")
	ErrInvalidTranslationPolicy = errors.New("TRANSLATION_POLICY must be placeholder or fail")
	ErrInvalidSampleRate        = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidExporterType      = errors.New("OTEL_EXPORTER_TYPE must be otlp-grpc or otlp-http")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidNumber            = errors.New("value must be a valid number")
	ErrInvalidDuration          = errors.New("value must be a valid duration")
	ErrNonPositive              = errors.New("value must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                     = 8080
	DefaultEnv                      = "development"
	DefaultStoreDriver              = "memory"
	DefaultMongoDatabase            = "echospot"
	DefaultS3Region                 = "auto"
	DefaultAudioBucket              = "audiofiles"
	DefaultImageBucket              = "spotimages"
	DefaultMaxUploadSizeMB          = 64
	DefaultTranscriptPollInterval   = 3 * time.Second
	DefaultTranscriptMaxWait        = 5 * time.Minute
	DefaultOpenAIModel              = "gpt-4o-mini"
	DefaultTranslationPolicy        = "placeholder"
	DefaultBadgeAward               = 10
	DefaultNearbyRadiusMeters       = 3000.0
	DefaultGeoMatchTolerance        = 1e-5
	DefaultSummaryTTL               = 30 * time.Minute
	DefaultRateLimitSubmitPerMinute = 10
	DefaultTracingExporterType      = "otlp-http"
	DefaultTracingSampleRate        = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := &loader{k: k}

	// Try ECHOSPOT_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"ECHOSPOT_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		l.errs = append(l.errs, err)
	}

	cfg := &Config{
		Port:          port,
		Env:           getEnvOrDefaultMulti([]string{"ECHOSPOT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		StoreDriver:   strings.ToLower(getEnvOrDefault("STORE_DRIVER", k.String("store_driver"), DefaultStoreDriver)),
		DatabaseURL:   getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		MongoURI:      getEnvOrKoanf("MONGO_URI", k, "mongo_uri"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", k.String("mongo_database"), DefaultMongoDatabase),
		RedisURL:      getEnvOrKoanf("REDIS_URL", k, "redis_url"),

		S3Endpoint:        getEnvOrKoanf("S3_ENDPOINT", k, "s3_endpoint"),
		S3Region:          getEnvOrDefault("S3_REGION", k.String("s3_region"), DefaultS3Region),
		S3AccessKeyID:     getEnvOrKoanf("S3_ACCESS_KEY_ID", k, "s3_access_key_id"),
		S3SecretAccessKey: getEnvOrKoanf("S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key"),
		S3PublicBaseURL:   getEnvOrKoanf("S3_PUBLIC_BASE_URL", k, "s3_public_base_url"),
		AudioBucket:       getEnvOrDefault("AUDIO_BUCKET", k.String("audio_bucket"), DefaultAudioBucket),
		ImageBucket:       getEnvOrDefault("IMAGE_BUCKET", k.String("image_bucket"), DefaultImageBucket),
		MaxUploadSizeMB:   l.int("MAX_UPLOAD_SIZE_MB", "max_upload_size_mb", DefaultMaxUploadSizeMB),

		WhisperURL:             getEnvOrKoanf("WHISPER_URL", k, "whisper_url"),
		AssemblyAIURL:          getEnvOrKoanf("ASSEMBLYAI_URL", k, "assemblyai_url"),
		AssemblyAIAPIKey:       getEnvOrKoanf("ASSEMBLYAI_API_KEY", k, "assemblyai_api_key"),
		TranscriptPollInterval: l.duration("TRANSCRIPT_POLL_INTERVAL", "transcript_poll_interval", DefaultTranscriptPollInterval),
		TranscriptMaxWait:      l.duration("TRANSCRIPT_MAX_WAIT", "transcript_max_wait", DefaultTranscriptMaxWait),

		OpenAIAPIKey:      getEnvOrKoanf("OPENAI_API_KEY", k, "openai_api_key"),
		OpenAIModel:       getEnvOrDefault("OPENAI_MODEL", k.String("openai_model"), DefaultOpenAIModel),
		OpenAIBaseURL:     getEnvOrKoanf("OPENAI_BASE_URL", k, "openai_base_url"),
		TranslationPolicy: strings.ToLower(getEnvOrDefault("TRANSLATION_POLICY", k.String("translation_policy"), DefaultTranslationPolicy)),

		BadgeAward:         l.int("BADGE_AWARD", "badge_award", DefaultBadgeAward),
		NearbyRadiusMeters: l.float("NEARBY_RADIUS_METERS", "nearby_radius_meters", DefaultNearbyRadiusMeters),
		GeoMatchTolerance:  l.float("GEO_MATCH_TOLERANCE", "geo_match_tolerance", DefaultGeoMatchTolerance),
		SummaryTTL:         l.duration("SUMMARY_TTL", "summary_ttl", DefaultSummaryTTL),
		SanitizeImages:     l.bool("SANITIZE_IMAGES", "sanitize_images", false),

		RateLimitSubmitPerMinute: l.int("RATE_LIMIT_SUBMIT_PER_MINUTE", "rate_limit_submit_per_minute", DefaultRateLimitSubmitPerMinute),
		CORSAllowedOrigins:       getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),

		TracingEnabled:      l.bool("TRACING_ENABLED", "tracing_enabled", false),
		TracingExporterType: getEnvOrDefault("OTEL_EXPORTER_TYPE", k.String("otel_exporter_type"), DefaultTracingExporterType),
		TracingOTLPEndpoint: getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otel_exporter_otlp_endpoint"),
		TracingSampleRate:   l.float("TRACING_SAMPLE_RATE", "tracing_sample_rate", DefaultTracingSampleRate),
		TracingInsecure:     l.bool("TRACING_INSECURE", "tracing_insecure", false),
	}

	// Validate and collect errors
	errs := append(l.errs, cfg.Validate()...)
	return cfg, errs
}

// loader reads typed values, env first, then koanf, then the default, and
// collects parse errors.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) int(envKey, koanfKey string, def int) int {
	v, err := getEnvIntOrDefault(envKey, l.k.Int(koanfKey), def)
	if err != nil {
		l.errs = append(l.errs, err)
		return def
	}
	return v
}

func (l *loader) float(envKey, koanfKey string, def float64) float64 {
	v, err := getEnvFloatOrDefault(envKey, l.k.Float64(koanfKey), def)
	if err != nil {
		l.errs = append(l.errs, err)
		return def
	}
	return v
}

func (l *loader) duration(envKey, koanfKey string, def time.Duration) time.Duration {
	raw := os.Getenv(envKey)
	if raw == "" {
		raw = l.k.String(koanfKey)
	}
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration))
		return def
	}
	return d
}

func (l *loader) bool(envKey, koanfKey string, def bool) bool {
	v := def
	if l.k.Exists(koanfKey) {
		v = l.k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			v = true
		case "false", "0", "no", "off":
			v = false
		}
	}
	return v
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf reads a comma-separated env var, otherwise the koanf list.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidNumber)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that required values for the selected backends are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, ErrMissingMongoURI)
		}
	default:
		errs = append(errs, ErrInvalidStoreDriver)
	}

	// Object storage is optional; without it media is kept in memory.
	// Only validate fields if any S3 value is set.
	if c.S3Endpoint != "" || c.S3AccessKeyID != "" || c.S3SecretAccessKey != "" {
		if c.S3Endpoint == "" {
			errs = append(errs, ErrMissingS3Endpoint)
		}
		if c.S3AccessKeyID == "" {
			errs = append(errs, ErrMissingS3AccessKeyID)
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, ErrMissingS3SecretAccessKey)
		}
	}

	if c.TranslationPolicy != "placeholder" && c.TranslationPolicy != "fail" {
		errs = append(errs, ErrInvalidTranslationPolicy)
	}

	for name, v := range map[string]float64{
		"MAX_UPLOAD_SIZE_MB":           float64(c.MaxUploadSizeMB),
		"BADGE_AWARD":                  float64(c.BadgeAward),
		"NEARBY_RADIUS_METERS":         c.NearbyRadiusMeters,
		"GEO_MATCH_TOLERANCE":          c.GeoMatchTolerance,
		"RATE_LIMIT_SUBMIT_PER_MINUTE": float64(c.RateLimitSubmitPerMinute),
		"TRANSCRIPT_POLL_INTERVAL":     float64(c.TranscriptPollInterval),
		"TRANSCRIPT_MAX_WAIT":          float64(c.TranscriptMaxWait),
		"SUMMARY_TTL":                  float64(c.SummaryTTL),
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrNonPositive))
		}
	}

	if c.TracingEnabled {
		if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
			errs = append(errs, ErrInvalidSampleRate)
		}
		if c.TracingExporterType != "otlp-grpc" && c.TracingExporterType != "otlp-http" {
			errs = append(errs, ErrInvalidExporterType)
		}
	}

	return errs
}

// MaxUploadBytes returns the multipart body limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     strconv.Itoa(c.Port),
		"env":                      c.Env,
		"store_driver":             c.StoreDriver,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"mongo_uri":                maskDatabaseURL(c.MongoURI),
		"mongo_database":           c.MongoDatabase,
		"redis_url":                maskDatabaseURL(c.RedisURL),
		"s3_endpoint":              c.S3Endpoint,
		"s3_access_key_id":         maskSecret(c.S3AccessKeyID),
		"s3_secret_access_key":     maskSecret(c.S3SecretAccessKey),
		"audio_bucket":             c.AudioBucket,
		"image_bucket":             c.ImageBucket,
		"max_upload_size_mb":       strconv.Itoa(c.MaxUploadSizeMB),
		"whisper_url":              c.WhisperURL,
		"assemblyai_url":           c.AssemblyAIURL,
		"assemblyai_api_key":       maskSecret(c.AssemblyAIAPIKey),
		"transcript_max_wait":      c.TranscriptMaxWait.String(),
		"openai_api_key":           maskOpenAIKey(c.OpenAIAPIKey),
		"openai_model":             c.OpenAIModel,
		"translation_policy":       c.TranslationPolicy,
		"badge_award":              strconv.Itoa(c.BadgeAward),
		"nearby_radius_meters":     strconv.FormatFloat(c.NearbyRadiusMeters, 'f', -1, 64),
		"summary_ttl":              c.SummaryTTL.String(),
		"sanitize_images":          strconv.FormatBool(c.SanitizeImages),
		"submit_rate_per_minute":   strconv.Itoa(c.RateLimitSubmitPerMinute),
		"tracing_enabled":          strconv.FormatBool(c.TracingEnabled),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskOpenAIKey keeps the key family prefix (sk-, sk-proj-) and masks the rest.
func maskOpenAIKey(s string) string {
	if s == "" {
		return "<not set>"
	}
	if i := strings.LastIndex(s, "-"); i > 0 && i < 12 {
		return s[:i+1] + "****"
	}
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL such as
// postgres://, mongodb:// or redis://.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
