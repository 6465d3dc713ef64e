package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is built once at startup and
// passed explicitly to bootstrap.Build.
type Config struct {
	AppName         string
	Version         string
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	S3Endpoint      string

	LLMProvider    string
	LLMModel       string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	LLMTimeout     time.Duration
	OCRProvider    string
	OCRModel       string
	MistralAPIKey  string
	MistralBaseURL string
	OCRTimeout     time.Duration

	QueueBackend      string
	SQSQueueURL       string
	RedisAddr         string
	RedisPassword     string
	WorkerConcurrency int

	WorkerShutdownTimeout time.Duration
	SQSVisibilityTimeout  time.Duration
	SessionPurgeInterval  time.Duration

	SessionStore string
	SessionTTL   time.Duration

	UsageDefaultTier  string
	UsageDefaultLimit int

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	OTelEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	loadEnvFiles(envFiles()...)

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		AppName:           getEnv("APP_NAME", "stackdocs"),
		Version:           getEnv("APP_VERSION", "0.1.0"),
		Port:              getEnv("PORT", "8080"),
		CORSAllowOrigin:   splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		Env:               env,
		DatabaseURL:       dbURL,
		ObjectStoreType:   normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:     getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:         getEnv("AWS_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Prefix:          getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:       getEnv("SSE_KMS_KEY_ID", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:          getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		LLMTimeout:        getSeconds("LLM_TIMEOUT_SECONDS", 120),
		OCRProvider:       strings.ToLower(getEnv("OCR_PROVIDER", "mistral")),
		OCRModel:          getEnv("OCR_MODEL", "mistral-ocr-latest"),
		MistralAPIKey:     getEnv("MISTRAL_API_KEY", ""),
		MistralBaseURL:    getEnv("MISTRAL_BASE_URL", ""),
		OCRTimeout:        getSeconds("OCR_TIMEOUT_SECONDS", 180),
		QueueBackend:      normalizeQueueBackend(getEnv("QUEUE_BACKEND", "memory")),
		SQSQueueURL:       getEnv("SQS_QUEUE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 4),
		SessionStore:      strings.ToLower(getEnv("AGENT_SESSION_STORE", "")),

		WorkerShutdownTimeout: getSeconds("WORKER_SHUTDOWN_TIMEOUT_SECONDS", 30),
		SQSVisibilityTimeout:  getSeconds("SQS_VISIBILITY_TIMEOUT_SECONDS", 1200),
		SessionPurgeInterval:  getDuration("AGENT_SESSION_PURGE_INTERVAL", time.Hour),

		SessionTTL:        getDuration("AGENT_SESSION_TTL", 7*24*time.Hour),
		UsageDefaultTier:  getEnv("USAGE_DEFAULT_TIER", "free"),
		UsageDefaultLimit: getInt("USAGE_DEFAULT_LIMIT", 5),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		RateLimitRPS:      getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 20),
		OTelEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       getEnv("OTEL_SERVICE_NAME", "stackdocs-backend"),
	}
}

// IsDevLike reports whether env allows dev conveniences such as in-memory
// fallbacks and guest identities.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local", "":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getSeconds(key string, def int) time.Duration {
	secs := getInt(key, def)
	if secs <= 0 {
		secs = def
	}
	return time.Duration(secs) * time.Second
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeQueueBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "asynq", "redis":
		return "asynq"
	default:
		return "memory"
	}
}
