package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Bounds for chunking configuration. Upload requests outside these ranges
// are rejected before a job is created.
const (
	MinChunkSize    = 3000
	MaxChunkSize    = 5000
	MinChunkOverlap = 200
	MaxChunkOverlap = 500
)

type Config struct {
	DatabaseURL  string
	RedisAddr    string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	OCRModel     string
	WebSearchURL string
	WebSearchKey string
	Port         string
	LogMode      string
	WorkerCount  int

	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Summarizer knobs (see internal/core/summarizer).
	SummaryMaxFiles     int
	SummaryCharBudget   int
	SummaryLLMDelayMS   int
	SummaryChunksPer    int
	SummaryDirectLimit  int
	SummaryCoarseChunk  int
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "studya-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 1536),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		OCRModel:     getEnv("OCR_MODEL", "gemini-1.5-flash"),
		WebSearchURL: getEnv("WEB_SEARCH_URL", ""),
		WebSearchKey: getEnv("WEB_SEARCH_KEY", ""),
		Port:         getEnv("PORT", "8080"),
		LogMode:      getEnv("LOG_MODE", "dev"),
		WorkerCount:  getEnvInt("WORKER_COUNT", 4),

		DefaultChunkSize:    getEnvInt("CHUNK_SIZE", 3000),
		DefaultChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		SummaryMaxFiles:    getEnvInt("SUMMARY_MAX_FILES", 5),
		SummaryCharBudget:  getEnvInt("SUMMARY_CHAR_BUDGET", 60000),
		SummaryLLMDelayMS:  getEnvInt("SUMMARY_LLM_DELAY_MS", 1500),
		SummaryChunksPer:   getEnvInt("SUMMARY_CHUNKS_PER_FILE", 40),
		SummaryDirectLimit: getEnvInt("SUMMARY_DIRECT_LIMIT", 12000),
		SummaryCoarseChunk: getEnvInt("SUMMARY_COARSE_CHUNK", 10000),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
