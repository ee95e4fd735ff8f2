package tokenstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore — токены в памяти процесса. Теряются при рестарте.
type MemoryStore struct {
	tokens *expirable.LRU[string, string]
	random io.Reader
}

// NewMemoryStore создаёт in-memory хранилище.
// maxSize — максимум одновременно живых токенов (самые старые вытесняются).
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		tokens: expirable.NewLRU[string, string](maxSize, nil, ttl),
		random: defaultRandom(),
	}
}

// Issue выдаёт токен.
func (s *MemoryStore) Issue(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("пустой user_id")
	}
	token, err := newToken(s.random)
	if err != nil {
		return "", err
	}
	s.tokens.Add(token, userID)
	return token, nil
}

// Resolve возвращает user_id владельца токена.
func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	userID, ok := s.tokens.Get(token)
	if !ok {
		return "", ErrUnknownToken
	}
	return userID, nil
}

// Revoke удаляет токен.
func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	s.tokens.Remove(token)
	return nil
}

// Close забывает все выданные токены.
func (s *MemoryStore) Close() error {
	s.tokens.Purge()
	return nil
}
