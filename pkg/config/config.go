package config

import (
	"context"
	"time"
)

// Config represents the complete configuration of the nutrilens service.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	LLM        LLMConfig        `koanf:"llm"        validate:"required"`
	Embedder   EmbedderConfig   `koanf:"embedder"   validate:"required"`
	VectorDB   VectorDBConfig   `koanf:"vector_db"  validate:"required"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"  validate:"required"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Prompts    PromptsConfig    `koanf:"prompts"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes" validate:"min=1"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit uses the "<limit>-<period>" format, e.g. "60-M". Empty disables limiting.
	RateLimit string `koanf:"rate_limit"`
}

// LLMConfig binds the three model roles to a provider.
type LLMConfig struct {
	Provider      string          `koanf:"provider"       validate:"required,oneof=openai ollama googleai"`
	APIKey        SensitiveString `koanf:"api_key"                                                          sensitive:"true"`
	BaseURL       string          `koanf:"base_url"`
	VisionModel   string          `koanf:"vision_model"   validate:"required"`
	TextModel     string          `koanf:"text_model"     validate:"required"`
	ComputeModel  string          `koanf:"compute_model"  validate:"required"`
	Temperature   float64         `koanf:"temperature"    validate:"min=0,max=2"`
	MaxTokens     int             `koanf:"max_tokens"     validate:"min=0"`
	Timeout       time.Duration   `koanf:"timeout"`
	RetryAttempts int             `koanf:"retry_attempts" validate:"min=0,max=10"`
	RetryBackoff  time.Duration   `koanf:"retry_backoff"`
	// MaxConcurrency caps in-flight model calls; 0 means unlimited.
	MaxConcurrency int `koanf:"max_concurrency" validate:"min=0"`
	// RequestsPerSecond throttles model calls; 0 disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
}

// EmbedderConfig contains the embedding provider configuration.
type EmbedderConfig struct {
	Provider  string          `koanf:"provider"   validate:"required,oneof=openai ollama hashing"`
	Model     string          `koanf:"model"`
	APIKey    SensitiveString `koanf:"api_key"                                                sensitive:"true"`
	BaseURL   string          `koanf:"base_url"`
	Dimension int             `koanf:"dimension"  validate:"min=1"`
	BatchSize int             `koanf:"batch_size" validate:"min=1"`
	CacheSize int             `koanf:"cache_size" validate:"min=0"`
}

// VectorDBConfig selects and configures the vector store.
type VectorDBConfig struct {
	Provider    string          `koanf:"provider"     validate:"required,oneof=memory filesystem pgvector qdrant"`
	Path        string          `koanf:"path"`
	DSN         SensitiveString `koanf:"dsn"                                                                      sensitive:"true"`
	URL         string          `koanf:"url"`
	APIKey      SensitiveString `koanf:"api_key"                                                                  sensitive:"true"`
	Table       string          `koanf:"table"`
	Collection  string          `koanf:"collection"`
	EnsureIndex bool            `koanf:"ensure_index"`
}

// KnowledgeConfig configures the ingestion engine.
type KnowledgeConfig struct {
	DataPath          string        `koanf:"data_path"          validate:"required"`
	AllowedExtensions []string      `koanf:"allowed_extensions" validate:"min=1"`
	Recursive         bool          `koanf:"recursive"`
	ChunkSize         int           `koanf:"chunk_size"         validate:"min=1"`
	ChunkOverlap      int           `koanf:"chunk_overlap"      validate:"min=0"`
	Separators        []string      `koanf:"separators"`
	DigestProvider    string        `koanf:"digest_provider"    validate:"required,oneof=sqlite redis file"`
	DigestPath        string        `koanf:"digest_path"`
	RedisURL          string        `koanf:"redis_url"`
	IngestOnStart     bool          `koanf:"ingest_on_start"`
	Schedule          string        `koanf:"schedule"`
	Watch             bool          `koanf:"watch"`
	WatchDebounce     time.Duration `koanf:"watch_debounce"`
	WriteRetries      int           `koanf:"write_retries"      validate:"min=0"`
	WriteBackoff      time.Duration `koanf:"write_backoff"`
}

// RetrievalConfig tunes context building.
type RetrievalConfig struct {
	TopK      int     `koanf:"top_k"      validate:"min=1"`
	MinScore  float64 `koanf:"min_score"  validate:"min=-1,max=1"`
	MaxTokens int     `koanf:"max_tokens" validate:"min=0"`
	Encoding  string  `koanf:"encoding"`
}

// PromptsConfig holds optional template overrides. Empty paths use the built-in templates.
type PromptsConfig struct {
	VisionPath  string `koanf:"vision_path"`
	TextPath    string `koanf:"text_path"`
	ComputePath string `koanf:"compute_path"`
}

// PipelineConfig tunes the stage orchestrator.
type PipelineConfig struct {
	FallbackContext string `koanf:"fallback_context" validate:"required"`
}

// MonitoringConfig toggles the metrics endpoint.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Service defines the configuration loading service interface.
type Service interface {
	// Load loads configuration from the given sources on top of defaults and environment.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type for a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "NUTRILENS_"

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration from defaults and environment, then the optional YAML file.
func Load(ctx context.Context, yamlPath string) (*Config, error) {
	sources := []Source{}
	if yamlPath != "" {
		sources = append(sources, NewYAMLProvider(yamlPath))
	}
	return NewService().Load(ctx, sources...)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			MaxUploadBytes:  10 << 20,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       "120-M",
		},
		LLM: LLMConfig{
			Provider:      "openai",
			BaseURL:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
			VisionModel:   "qwen-vl-max",
			TextModel:     "qwen-plus",
			ComputeModel:  "qwen-plus",
			Temperature:   0,
			Timeout:       60 * time.Second,
			RetryAttempts: 1,
			RetryBackoff:  500 * time.Millisecond,
		},
		Embedder: EmbedderConfig{
			Provider:  "openai",
			Model:     "text-embedding-v3",
			BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Dimension: 1024,
			BatchSize: 16,
			CacheSize: 512,
		},
		VectorDB: VectorDBConfig{
			Provider:   "filesystem",
			Path:       "data/vector_store.json",
			Table:      "nutrition_chunks",
			Collection: "nutrition",
		},
		Knowledge: KnowledgeConfig{
			DataPath:          "data/knowledge",
			AllowedExtensions: []string{".txt", ".pdf", ".json", ".md"},
			ChunkSize:         200,
			ChunkOverlap:      20,
			Separators:        []string{"\n\n", "\n", " ", ""},
			DigestProvider:    "sqlite",
			DigestPath:        "data/ingested.db",
			IngestOnStart:     true,
			WatchDebounce:     2 * time.Second,
			WriteRetries:      2,
			WriteBackoff:      200 * time.Millisecond,
		},
		Retrieval: RetrievalConfig{
			TopK:     1,
			Encoding: "cl100k_base",
		},
		Pipeline: PipelineConfig{
			FallbackContext: "No reference data was found in the knowledge base. " +
				"Estimate from general nutrition knowledge.",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
