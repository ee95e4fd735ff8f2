// Пакет tokenstore — непрозрачные API-токены, выдаваемые пользователям
// (через sharectl) как альтернатива JWT. Токен разрешается в user_id.
// Бэкенды: in-memory (expirable LRU) и Redis.
package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownToken — токен не выдавался, истёк или отозван.
var ErrUnknownToken = errors.New("неизвестный токен")

// tokenBytes — длина случайной части токена.
const tokenBytes = 32

// Store хранит соответствие токен → user_id.
type Store interface {
	// Issue выдаёт новый токен для пользователя.
	Issue(ctx context.Context, userID string) (string, error)
	// Resolve возвращает user_id по токену или ErrUnknownToken.
	Resolve(ctx context.Context, token string) (string, error)
	// Revoke отзывает токен. Отзыв неизвестного токена не ошибка.
	Revoke(ctx context.Context, token string) error
	Close() error
}

// newToken генерирует токен: 32 случайных байта в base64url без паддинга.
func newToken(src io.Reader) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func defaultRandom() io.Reader {
	return rand.Reader
}
