package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Inference endpoint (OpenRouter-compatible)
	InferenceBaseURL string
	InferenceAPIKey  string
	InferenceTimeout int // seconds

	// Blob storage
	StoragePath    string
	StorageBaseURL string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		Env:              getEnvOrDefault("ENV", "development"),
		DatabaseURL:      mustGetEnv("DATABASE_URL"),
		RedisURL:         mustGetEnv("REDIS_URL"),
		JWTSecret:        mustGetEnv("JWT_SECRET"),
		InferenceBaseURL: getEnvOrDefault("INFERENCE_BASE_URL", "https://openrouter.ai/api/v1"),
		InferenceAPIKey:  getEnvOrDefault("INFERENCE_API_KEY", ""),
		InferenceTimeout: getEnvAsIntOrDefault("INFERENCE_TIMEOUT_SECONDS", 120),
		StoragePath:      getEnvOrDefault("STORAGE_PATH", "./uploads"),
		StorageBaseURL:   getEnvOrDefault("STORAGE_BASE_URL", "http://localhost:8080/files"),
		FrontendURL:      getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
