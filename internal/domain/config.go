package domain

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository  RepositoryConfig  `json:"repository"`
	Cache       CacheConfig       `json:"cache"`
	EventBus    EventBusConfig    `json:"eventBus"`
	VectorStore VectorStoreConfig `json:"vectorStore"`
	Backends    BackendsConfig    `json:"backends"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// BackendsConfig holds the external AI collaborator settings.
// An empty API key selects the degraded variant of that collaborator.
type BackendsConfig struct {
	// Model gateway (chat completions + embeddings, OpenAI-compatible)
	ModelAPIKey  string `json:"-"`
	ModelBaseURL string `json:"modelBaseUrl"`

	// EnsembleModels are queried independently per analysis.
	EnsembleModels []string `json:"ensembleModels"`

	// Multimodal pattern/vision backend
	VisionAPIKey  string `json:"-"`
	VisionBaseURL string `json:"visionBaseUrl"`

	// Workflow automation backend
	WorkflowAPIKey  string `json:"-"`
	WorkflowBaseURL string `json:"workflowBaseUrl"`

	// Per-collaborator call timeouts, seconds. Calls exceeding these are
	// treated as failed and degrade per the soft-degradation rules.
	ChatTimeout     int `json:"chatTimeout"`
	EmbedTimeout    int `json:"embedTimeout"`
	WorkflowTimeout int `json:"workflowTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns the single-node default configuration:
// SQLite + in-process cache + channel bus + local vector store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		VectorStore: VectorStoreConfig{
			Driver:     "local",
			LocalPath:  "./kestrel-vectors.db",
			Collection: "fraud_patterns",
		},
		Backends: BackendsConfig{
			ModelBaseURL:    "https://api.aimlapi.com/v1",
			EnsembleModels:  []string{"gpt-4", "claude-3-opus", "llama-3"},
			VisionBaseURL:   "https://generativelanguage.googleapis.com/v1",
			WorkflowBaseURL: "https://api.opus.ai/v1",
			ChatTimeout:     60,
			EmbedTimeout:    30,
			WorkflowTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ClusterConfig returns a configuration for multi-node deployments:
// PostgreSQL + Redis + NATS + Qdrant.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.VectorStore = VectorStoreConfig{
		Driver:     "qdrant",
		QdrantURL:  "http://localhost:6333",
		Collection: "fraud_patterns",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
