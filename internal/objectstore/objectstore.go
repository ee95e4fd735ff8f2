// Пакет objectstore — чтение содержимого файлов по ключу хранилища.
// Бэкенды: локальная директория, MinIO/S3, внешний HTTP Storage Element.
// Любой бэкенд можно обернуть circuit breaker (BreakerStore).
package objectstore

import (
	"context"
	"errors"
	"io"
)

// Ошибки объектного хранилища.
var (
	// ErrNotFound — объекта с таким ключом нет.
	ErrNotFound = errors.New("объект не найден")
	// ErrUnavailable — хранилище временно недоступно (circuit breaker разомкнут).
	ErrUnavailable = errors.New("объектное хранилище недоступно")
)

// Object — открытый для чтения объект. Вызывающий код обязан закрыть Body.
type Object struct {
	Body io.ReadCloser
	// Size — размер в байтах (-1, если неизвестен)
	Size int64
	// ContentType — MIME-тип, сообщённый хранилищем (может быть пустым)
	ContentType string
}

// Store открывает объекты по ключу.
type Store interface {
	Open(ctx context.Context, key string) (*Object, error)
}
