package embedder

import (
	appconfig "github.com/compozy/nutrilens/pkg/config"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOpenAI  Provider = "openai"
	ProviderOllama  Provider = "ollama"
	ProviderHashing Provider = "hashing"
)

// Config describes how to build an embedder.
type Config struct {
	ID            string
	Provider      Provider
	Model         string
	APIKey        string
	BaseURL       string
	Dimension     int
	BatchSize     int
	StripNewLines bool
}

// FromAppConfig maps the embedder section of the application configuration.
func FromAppConfig(cfg *appconfig.EmbedderConfig) *Config {
	return &Config{
		ID:            string(cfg.Provider) + ":" + cfg.Model,
		Provider:      Provider(cfg.Provider),
		Model:         cfg.Model,
		APIKey:        cfg.APIKey.Value(),
		BaseURL:       cfg.BaseURL,
		Dimension:     cfg.Dimension,
		BatchSize:     cfg.BatchSize,
		StripNewLines: true,
	}
}
