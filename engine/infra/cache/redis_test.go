package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	t.Run("Should connect through a URL", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedis(t.Context(), FromURL("redis://"+mr.Addr()))
		require.NoError(t, err)
		defer client.Close()
		added, err := client.SAdd(t.Context(), "digests", "abc").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), added)
		isMember, err := client.SIsMember(t.Context(), "digests", "abc").Result()
		require.NoError(t, err)
		assert.True(t, isMember)
	})
	t.Run("Should connect through host and port", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedis(t.Context(), &Config{Host: mr.Host(), Port: mr.Port()})
		require.NoError(t, err)
		require.NoError(t, client.Close())
		assert.NoError(t, client.Close())
	})
	t.Run("Should fail when the server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := NewRedis(t.Context(), &Config{URL: "redis://" + addr, PingTimeout: 200 * time.Millisecond})
		assert.Error(t, err)
	})
	t.Run("Should reject a malformed URL", func(t *testing.T) {
		_, err := NewRedis(t.Context(), FromURL("://bad"))
		assert.Error(t, err)
	})
	t.Run("Should require a config", func(t *testing.T) {
		_, err := NewRedis(t.Context(), nil)
		assert.Error(t, err)
	})
}
