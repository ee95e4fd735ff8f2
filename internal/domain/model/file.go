// Пакет model — доменные модели Share Module.
package model

import "time"

// Статусы файла в каталоге.
const (
	FileStatusActive  = "active"
	FileStatusDeleted = "deleted"
)

// FileItem — запись файла в каталоге file_items (owned by основное приложение).
// Share Module читает её при расшаривании и помечает удалённой,
// если содержимое пропало из объектного хранилища.
type FileItem struct {
	// ID — UUID файла
	ID string
	// OwnerID — владелец файла (идентификатор пользователя)
	OwnerID string
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// ContentType — MIME-тип
	ContentType string
	// Size — размер в байтах
	Size int64
	// StorageKey — ключ содержимого в объектном хранилище
	StorageKey string
	// Status — active или deleted
	Status string
	// CreatedAt — время загрузки
	CreatedAt time.Time
}

// IsActive сообщает, доступен ли файл для расшаривания.
func (f *FileItem) IsActive() bool {
	return f.Status == FileStatusActive
}
