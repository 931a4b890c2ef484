package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Gemini
	GeminiAPIKey   string
	GeminiModel    string
	EmbeddingModel string
	GeminiTier     string

	// Uploads / extraction cache
	UploadDir         string
	MaxFileSize       int64
	CacheCleanupHours int

	// OCR sidecar
	OCRServiceURL string
	OCRUseGPU     bool
	OCRTimeout    int // seconds

	// Transcript service
	TranscriptServiceURL string
	TranscriptTimeout    int // seconds

	// Chunking / retrieval
	MaxChunkSize    int
	ChunkOverlap    int
	RetrievalTopK   int
	MaxContextChars int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:     getEnv("GEMINI_TIER", "free"),

		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		MaxFileSize:       getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		CacheCleanupHours: getEnvInt("CACHE_CLEANUP_HOURS", 6),

		OCRServiceURL: getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRUseGPU:     getEnvBool("OCR_USE_GPU", false),
		OCRTimeout:    getEnvInt("OCR_TIMEOUT", 300),

		TranscriptServiceURL: getEnv("TRANSCRIPT_SERVICE_URL", "http://localhost:8002"),
		TranscriptTimeout:    getEnvInt("TRANSCRIPT_TIMEOUT", 30),

		MaxChunkSize:    getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 200),
		RetrievalTopK:   getEnvInt("RETRIEVAL_TOP_K", 6),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 100000),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
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
