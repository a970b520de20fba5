// Package config loads the Kestrel configuration from environment
// variables layered over the built-in profiles.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Load reads configuration with fallback to a .env file.
// Priority order: environment variables > .env file > profile defaults.
func Load() (*domain.Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if getEnv("KESTREL_PROFILE", "") == "cluster" {
		cfg = domain.ClusterConfig()
	}

	// Server
	cfg.Server.Host = getEnv("KESTREL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("KESTREL_PORT", cfg.Server.Port)

	// Repository
	cfg.Repository.Driver = getEnv("KESTREL_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = getEnv("KESTREL_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("KESTREL_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("KESTREL_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("KESTREL_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("KESTREL_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("KESTREL_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("KESTREL_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache
	cfg.Cache.Type = getEnv("KESTREL_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = getEnv("KESTREL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("KESTREL_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("KESTREL_REDIS_DB", cfg.Cache.RedisDB)

	// Event bus
	cfg.EventBus.Type = getEnv("KESTREL_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = getEnv("KESTREL_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("KESTREL_NATS_TOKEN", cfg.EventBus.NATSToken)
	if brokers := getEnv("KESTREL_KAFKA_BROKERS", ""); brokers != "" {
		cfg.EventBus.KafkaBrokers = splitList(brokers)
	}

	// Vector store
	cfg.VectorStore.Driver = getEnv("KESTREL_VECTOR_DRIVER", cfg.VectorStore.Driver)
	cfg.VectorStore.QdrantURL = getEnv("KESTREL_QDRANT_URL", cfg.VectorStore.QdrantURL)
	cfg.VectorStore.QdrantAPIKey = getEnv("KESTREL_QDRANT_API_KEY", cfg.VectorStore.QdrantAPIKey)
	cfg.VectorStore.Collection = getEnv("KESTREL_QDRANT_COLLECTION", cfg.VectorStore.Collection)
	cfg.VectorStore.LocalPath = getEnv("KESTREL_VECTOR_PATH", cfg.VectorStore.LocalPath)

	// AI collaborators. Empty keys select the degraded variants.
	cfg.Backends.ModelAPIKey = getEnv("KESTREL_MODEL_API_KEY", cfg.Backends.ModelAPIKey)
	cfg.Backends.ModelBaseURL = getEnv("KESTREL_MODEL_BASE_URL", cfg.Backends.ModelBaseURL)
	cfg.Backends.VisionAPIKey = getEnv("KESTREL_VISION_API_KEY", cfg.Backends.VisionAPIKey)
	cfg.Backends.VisionBaseURL = getEnv("KESTREL_VISION_BASE_URL", cfg.Backends.VisionBaseURL)
	cfg.Backends.WorkflowAPIKey = getEnv("KESTREL_WORKFLOW_API_KEY", cfg.Backends.WorkflowAPIKey)
	cfg.Backends.WorkflowBaseURL = getEnv("KESTREL_WORKFLOW_BASE_URL", cfg.Backends.WorkflowBaseURL)
	cfg.Backends.ChatTimeout = getEnvInt("KESTREL_CHAT_TIMEOUT", cfg.Backends.ChatTimeout)
	cfg.Backends.EmbedTimeout = getEnvInt("KESTREL_EMBED_TIMEOUT", cfg.Backends.EmbedTimeout)
	cfg.Backends.WorkflowTimeout = getEnvInt("KESTREL_WORKFLOW_TIMEOUT", cfg.Backends.WorkflowTimeout)
	if models := getEnv("KESTREL_ENSEMBLE_MODELS", ""); models != "" {
		cfg.Backends.EnsembleModels = splitList(models)
	}

	// Observability
	cfg.Logging.Level = getEnv("KESTREL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("KESTREL_LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.Enabled = getEnvBool("KESTREL_TRACING", cfg.Tracing.Enabled)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for structural mistakes.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("KESTREL_PORT must be between 1 and 65535")
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown repository driver %q", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel", "nats", "kafka":
	default:
		return fmt.Errorf("unknown event bus type %q", cfg.EventBus.Type)
	}

	switch cfg.VectorStore.Driver {
	case "local", "qdrant":
	default:
		return fmt.Errorf("unknown vector store driver %q", cfg.VectorStore.Driver)
	}

	if len(cfg.Backends.EnsembleModels) == 0 {
		return fmt.Errorf("KESTREL_ENSEMBLE_MODELS must name at least one model")
	}

	return nil
}

// MaskSecret hides all but the first and last 4 characters of a secret.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
