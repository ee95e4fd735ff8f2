package tokenstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// exerciseStore — общий сценарий для всех бэкендов.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	token, err := store.Issue(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, token, 43)

	other, err := store.Issue(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "токены должны быть уникальны")

	userID, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrUnknownToken)

	// Повторный отзыв — не ошибка
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Resolve(ctx, "never-issued")
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = store.Issue(ctx, "")
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(100, time.Hour))
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(100, 50*time.Millisecond)
	token, err := store.Issue(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := store.Resolve(context.Background(), token)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewToken_RandomSourceError(t *testing.T) {
	_, err := newToken(strings.NewReader("short"))
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста (TEST_INTEGRATION не установлен)")
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := NewRedisStore(ctx, "redis://"+endpoint, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(ctx))
	exerciseStore(t, store)

	ttl, err := store.rdb.TTL(ctx, keyPrefix+mustIssue(t, store)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", time.Hour)
	require.Error(t, err)
}

func mustIssue(t *testing.T, store Store) string {
	t.Helper()
	token, err := store.Issue(context.Background(), "user-ttl")
	require.NoError(t, err)
	return token
}
