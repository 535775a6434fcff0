package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort       string
	FirebaseProject  string
	FirebaseApiKey   string
	Environment      string
	RedisAddr        string
	ServiceKey       string
	HandshakeTimeout time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FirebaseProject:  getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseApiKey:   getEnv("FIREBASE_API_KEY", ""),
		Environment:      getEnv("ENVIRONMENT", "development"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		ServiceKey:       getEnv("SERVICE_KEY", ""),
		HandshakeTimeout: time.Duration(getEnvAsInt64("HANDSHAKE_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
