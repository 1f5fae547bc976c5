package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// JWT auth (tenant/role resolution on every call)
	JWTSecret string

	// Redis: asynq queue, job logs, transcript cache
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Ingestion worker
	WorkerConcurrency int
	FileStorageDir    string

	// Chunking
	MaxChunkSize int
	ChunkOverlap int
	MinChunkSize int

	// Embeddings
	GeminiAPIKey        string
	EmbeddingModel      string
	EmbeddingDim        int
	EmbeddingTier       string // free, tier1, tier2
	VectorSearchEnabled bool   // Atlas $vectorSearch instead of exact scan
	VectorIndexName     string

	// Retrieval
	PrefetchMultiplier int
	PrefetchFloor      int

	// OCR sidecar (local_dir fallback)
	OCRServiceURL     string
	OCRServiceEnabled bool
	OCRTimeout        int

	// Transcription provider: mock, local, cloud
	TranscriptionProvider string
	WhisperBinary         string

	// Scheduled re-ingestion of active sources
	ReingestCron    string
	ReingestEnabled bool

	// Rate limiting (API)
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/knowledge_platform"),
		DBName:   getEnv("DB_NAME", "knowledge_platform"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		FileStorageDir:    getEnv("FILE_STORAGE_DIR", "./storage"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 100),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDim:        getEnvInt("EMBEDDING_DIM", 768),
		EmbeddingTier:       getEnv("EMBEDDING_TIER", "free"),
		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "chunks_vector"),

		PrefetchMultiplier: getEnvInt("RETRIEVAL_PREFETCH_MULTIPLIER", 4),
		PrefetchFloor:      getEnvInt("RETRIEVAL_PREFETCH_FLOOR", 20),

		OCRServiceURL:     getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRServiceEnabled: getEnvBool("OCR_SERVICE_ENABLED", false),
		OCRTimeout:        getEnvInt("OCR_TIMEOUT", 300),

		TranscriptionProvider: getEnv("TRANSCRIPTION_PROVIDER", "mock"),
		WhisperBinary:         getEnv("WHISPER_BINARY", "whisper"),

		ReingestCron:    getEnv("REINGEST_CRON", "0 3 * * *"),
		ReingestEnabled: getEnvBool("REINGEST_ENABLED", false),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.MaxChunkSize)
	}

	if cfg.PrefetchMultiplier < 1 {
		return nil, fmt.Errorf("RETRIEVAL_PREFETCH_MULTIPLIER must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
