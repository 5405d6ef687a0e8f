package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings. Per-domain provider settings live in the
// domains file referenced by DomainsFile.
type Config struct {
	DomainsFile      string
	APIAddr          string
	LogLevel         string
	LogFormat        string
	SyncInterval     time.Duration
	StallTimeout     time.Duration
	OtelEndpoint     string
	SignerPrivateKey string
	RPCURLs          []string // optional override used by `rpcagg status --urls`
}

func Load() *Config {
	_ = godotenv.Load() // .env is optional

	var rpcURLs []string
	if raw := getEnv("RPC_URLS", ""); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				rpcURLs = append(rpcURLs, u)
			}
		}
	}

	return &Config{
		DomainsFile:      getEnv("DOMAINS_FILE", "domains.yaml"),
		APIAddr:          getEnv("API_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		SyncInterval:     getEnvAsDuration("SYNC_INTERVAL", 30*time.Second),
		StallTimeout:     time.Duration(getEnvAsInt64("STALL_TIMEOUT_SECONDS", 10)) * time.Second,
		OtelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		SignerPrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
		RPCURLs:          rpcURLs,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s: %s, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		log.Printf("Invalid %s: %s, using default %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
