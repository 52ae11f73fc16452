package digest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"

	appconfig "github.com/compozy/nutrilens/pkg/config"
)

// Provider selects the backing store for ingestion records.
type Provider string

const (
	ProviderSQLite Provider = "sqlite"
	ProviderRedis  Provider = "redis"
	ProviderFile   Provider = "file"
)

// Record marks a file content digest as ingested.
type Record struct {
	Digest     string
	Source     string
	IngestedAt time.Time
}

// Store is a set of ingested digests. Add is idempotent.
type Store interface {
	Has(ctx context.Context, digest string) (bool, error)
	Add(ctx context.Context, record Record) error
	Close(ctx context.Context) error
}

// Config selects and locates a digest store.
type Config struct {
	Provider Provider
	Path     string
	RedisURL string
	// Key is the redis set key.
	Key string
}

const defaultRedisKey = "nutrilens:ingested_digests"

var errInvalidDigest = errors.New("digest must be 32 lowercase hex characters")

// FromAppConfig maps the knowledge section onto a digest store config.
func FromAppConfig(cfg *appconfig.KnowledgeConfig) *Config {
	return &Config{
		Provider: Provider(cfg.DigestProvider),
		Path:     cfg.DigestPath,
		RedisURL: cfg.RedisURL,
		Key:      defaultRedisKey,
	}
}

// New opens the configured store.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("digest: config is required")
	}
	switch cfg.Provider {
	case ProviderSQLite:
		return newSQLiteStore(ctx, cfg.Path)
	case ProviderRedis:
		key := cfg.Key
		if key == "" {
			key = defaultRedisKey
		}
		return newRedisStore(ctx, cfg.RedisURL, key)
	case ProviderFile:
		return newFileStore(afero.NewOsFs(), cfg.Path)
	default:
		return nil, fmt.Errorf("digest: provider %q is not supported", cfg.Provider)
	}
}

// File streams path through MD5 and returns the lowercase hex digest.
func File(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func validDigest(digest string) error {
	if len(digest) != md5.Size*2 || strings.ToLower(digest) != digest {
		return errInvalidDigest
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return errInvalidDigest
	}
	return nil
}

func normalize(record Record) (Record, error) {
	if err := validDigest(record.Digest); err != nil {
		return record, err
	}
	if record.IngestedAt.IsZero() {
		record.IngestedAt = time.Now().UTC()
	}
	return record, nil
}
