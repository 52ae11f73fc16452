package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appconfig "github.com/compozy/nutrilens/pkg/config"
)

var (
	errMissingProvider  = errors.New("vector_db provider is required")
	errMissingDSN       = errors.New("vector_db dsn is required")
	errMissingURL       = errors.New("vector_db url is required")
	errMissingPath      = errors.New("vector_db path is required")
	errInvalidDimension = errors.New("vector_db dimension must be greater than zero")
)

// New instantiates a vector store backed by the requested provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderMemory:
		return newMemoryStore(cfg.Dimension), nil
	case ProviderFilesystem:
		return newFileStore(cfg)
	case ProviderPGVector:
		return newPGStore(ctx, cfg)
	case ProviderQdrant:
		return newQdrantStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("vector_db %q: provider %q is not supported", cfg.ID, cfg.Provider)
	}
}

// FromAppConfig maps the vector_db section; the dimension comes from the embedder.
func FromAppConfig(cfg *appconfig.VectorDBConfig, dimension int) *Config {
	return &Config{
		ID:          cfg.Provider,
		Provider:    Provider(cfg.Provider),
		DSN:         cfg.DSN.Value(),
		URL:         cfg.URL,
		APIKey:      cfg.APIKey.Value(),
		Path:        cfg.Path,
		Table:       cfg.Table,
		Collection:  cfg.Collection,
		EnsureIndex: cfg.EnsureIndex,
		Dimension:   dimension,
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_db config is required")
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("vector_db %q: %w", cfg.ID, errMissingProvider)
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Path = strings.TrimSpace(cfg.Path)
	switch cfg.Provider {
	case ProviderPGVector:
		if cfg.DSN == "" {
			return fmt.Errorf("vector_db %q: %w", cfg.ID, errMissingDSN)
		}
	case ProviderQdrant:
		if cfg.URL == "" {
			return fmt.Errorf("vector_db %q: %w", cfg.ID, errMissingURL)
		}
	case ProviderFilesystem:
		if cfg.Path == "" {
			return fmt.Errorf("vector_db %q: %w", cfg.ID, errMissingPath)
		}
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("vector_db %q: %w", cfg.ID, errInvalidDimension)
	}
	return nil
}
