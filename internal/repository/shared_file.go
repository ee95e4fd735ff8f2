package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// sharedFileColumns — столбцы share_files для SELECT-запросов.
const sharedFileColumns = `id, session_id, file_id, shared_by_user_id, shared_at,
	download_count, file_name, file_size, content_type, storage_key`

// SharedFileRepository — файлы, расшаренные в сессии.
type SharedFileRepository interface {
	// CreateOrGet вставляет запись. Если файл уже расшарен в сессию,
	// возвращает существующую запись и false.
	CreateOrGet(ctx context.Context, f *model.SharedFile) (*model.SharedFile, bool, error)
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.SharedFile, error)
	// GetBySessionAndFile возвращает запись по паре (сессия, файл) или ErrNotFound.
	GetBySessionAndFile(ctx context.Context, sessionID, fileID string) (*model.SharedFile, error)
	// ListBySession возвращает файлы сессии в порядке расшаривания.
	ListBySession(ctx context.Context, sessionID string) ([]*model.SharedFile, error)
	// IncrementDownloadCount атомарно увеличивает счётчик и возвращает новое значение.
	IncrementDownloadCount(ctx context.Context, id string) (int64, error)
	// Delete удаляет запись или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
}

type sharedFileRepo struct {
	db DBTX
}

// NewSharedFileRepository создаёт репозиторий расшаренных файлов.
func NewSharedFileRepository(db DBTX) SharedFileRepository {
	return &sharedFileRepo{db: db}
}

// createAttempts — попытки вставки, если конфликтующую запись успели удалить.
const createAttempts = 3

func (r *sharedFileRepo) CreateOrGet(ctx context.Context, f *model.SharedFile) (*model.SharedFile, bool, error) {
	query := `
		INSERT INTO share_files (session_id, file_id, shared_by_user_id, shared_at,
			download_count, file_name, file_size, content_type, storage_key)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
		ON CONFLICT (session_id, file_id) DO NOTHING
		RETURNING id, download_count`

	for range createAttempts {
		created := *f
		err := r.db.QueryRow(ctx, query,
			f.SessionID, f.FileID, f.SharedByUserID, f.SharedAt,
			f.FileName, f.FileSize, f.ContentType, f.StorageKey,
		).Scan(&created.ID, &created.DownloadCount)
		if err == nil {
			return &created, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("ошибка добавления файла в сессию: %w", err)
		}

		// Конфликт: запись создана раньше (возможно, параллельным запросом)
		existing, err := r.GetBySessionAndFile(ctx, f.SessionID, f.FileID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		// Запись удалили между INSERT и SELECT — пробуем вставить снова
	}
	return nil, false, fmt.Errorf("файл %s в сессии %s: %w", f.FileID, f.SessionID, ErrConflict)
}

func (r *sharedFileRepo) GetByID(ctx context.Context, id string) (*model.SharedFile, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM share_files WHERE id = $1`, sharedFileColumns)

	f, err := scanSharedFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения расшаренного файла")
	}
	return f, nil
}

func (r *sharedFileRepo) GetBySessionAndFile(ctx context.Context, sessionID, fileID string) (*model.SharedFile, error) {
	if !isUUID(sessionID) || !isUUID(fileID) {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM share_files WHERE session_id = $1 AND file_id = $2`, sharedFileColumns)

	f, err := scanSharedFile(r.db.QueryRow(ctx, query, sessionID, fileID))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения расшаренного файла")
	}
	return f, nil
}

func (r *sharedFileRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.SharedFile, error) {
	if !isUUID(sessionID) {
		return []*model.SharedFile{}, nil
	}
	query := fmt.Sprintf(
		`SELECT %s FROM share_files WHERE session_id = $1 ORDER BY shared_at, id`,
		sharedFileColumns,
	)

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов сессии: %w", err)
	}
	defer rows.Close()

	result := make([]*model.SharedFile, 0)
	for rows.Next() {
		f, err := scanSharedFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла сессии: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации файлов сессии: %w", err)
	}
	return result, nil
}

func (r *sharedFileRepo) IncrementDownloadCount(ctx context.Context, id string) (int64, error) {
	if !isUUID(id) {
		return 0, ErrNotFound
	}
	var count int64
	err := r.db.QueryRow(ctx,
		`UPDATE share_files SET download_count = download_count + 1 WHERE id = $1 RETURNING download_count`,
		id,
	).Scan(&count)
	if err != nil {
		return 0, notFoundOr(err, "ошибка увеличения счётчика скачиваний")
	}
	return count, nil
}

func (r *sharedFileRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM share_files WHERE id = $1`, id)
	if err != nil {
		return notFoundOr(err, "ошибка удаления файла из сессии")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSharedFile(row rowScanner) (*model.SharedFile, error) {
	f := &model.SharedFile{}
	err := row.Scan(
		&f.ID, &f.SessionID, &f.FileID, &f.SharedByUserID, &f.SharedAt,
		&f.DownloadCount, &f.FileName, &f.FileSize, &f.ContentType, &f.StorageKey,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
