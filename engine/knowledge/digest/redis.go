package digest

import (
	"context"
	"fmt"

	"github.com/compozy/nutrilens/engine/infra/cache"
)

type redisStore struct {
	client cache.SetClient
	key    string
}

func newRedisStore(ctx context.Context, url string, key string) (*redisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("digest: redis url is required")
	}
	client, err := cache.NewRedis(ctx, cache.FromURL(url))
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	return &redisStore{client: client, key: key}, nil
}

func (s *redisStore) Has(ctx context.Context, digest string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, digest).Result()
	if err != nil {
		return false, fmt.Errorf("digest: lookup %s: %w", digest, err)
	}
	return ok, nil
}

func (s *redisStore) Add(ctx context.Context, record Record) error {
	record, err := normalize(record)
	if err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.key, record.Digest).Err(); err != nil {
		return fmt.Errorf("digest: insert %s: %w", record.Digest, err)
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
