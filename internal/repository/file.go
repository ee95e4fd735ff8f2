package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// fileColumns — список столбцов таблицы file_items для SELECT-запросов.
const fileColumns = `id, owner_id, original_filename, content_type, size,
	storage_key, status, created_at`

// FileRepository — доступ к каталогу файлов file_items.
// Share Module читает каталог и выполняет MarkDeleted для lazy cleanup.
type FileRepository interface {
	// GetByID возвращает файл по UUID.
	GetByID(ctx context.Context, fileID string) (*model.FileItem, error)
	// MarkDeleted обновляет статус файла на 'deleted' (содержимое пропало из хранилища).
	MarkDeleted(ctx context.Context, fileID string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий каталога файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// GetByID возвращает файл по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileItem, error) {
	if !isUUID(fileID) {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM file_items WHERE id = $1`, fileColumns)

	f := &model.FileItem{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.ID, &f.OwnerID, &f.OriginalFilename, &f.ContentType, &f.Size,
		&f.StorageKey, &f.Status, &f.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения файла")
	}
	return f, nil
}

// MarkDeleted обновляет статус файла на 'deleted' (lazy cleanup).
// Используется когда хранилище сообщает, что содержимого больше нет.
func (r *fileRepo) MarkDeleted(ctx context.Context, fileID string) error {
	if !isUUID(fileID) {
		return ErrNotFound
	}
	query := `
		UPDATE file_items
		SET status = 'deleted'
		WHERE id = $1 AND status != 'deleted'`

	tag, err := r.db.Exec(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("ошибка пометки файла как удалённого: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
