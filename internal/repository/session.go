package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// sessionColumns — столбцы share_sessions для SELECT-запросов.
const sessionColumns = `id, code, creator_id, created_at, expires_at, active`

// SessionRepository — доступ к сессиям обмена.
type SessionRepository interface {
	// Create вставляет сессию и заполняет s.ID. Занятый код — ErrConflict.
	Create(ctx context.Context, s *model.Session) error
	// GetByID возвращает сессию по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// GetActiveByCode возвращает активную сессию по коду или ErrNotFound.
	GetActiveByCode(ctx context.Context, code string) (*model.Session, error)
	// CodeExists проверяет, занят ли код любой сессией (активной или нет).
	CodeExists(ctx context.Context, code string) (bool, error)
	// Deactivate снимает флаг active. Повторный вызов не ошибка.
	Deactivate(ctx context.Context, id string) error
	// DeactivateExpired деактивирует все активные сессии с expires_at < now
	// и возвращает их идентификаторы.
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)
	// DeleteInactiveBefore удаляет неактивные сессии, созданные до cutoff
	// (участники и файлы удаляются каскадно).
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepo struct {
	db DBTX
}

// NewSessionRepository создаёт репозиторий сессий.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO share_sessions (code, creator_id, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		s.Code, s.CreatorID, s.CreatedAt, s.ExpiresAt, s.Active,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM share_sessions WHERE id = $1`, sessionColumns)

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения сессии")
	}
	return s, nil
}

func (r *sessionRepo) GetActiveByCode(ctx context.Context, code string) (*model.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM share_sessions WHERE code = $1 AND active`, sessionColumns)

	s, err := scanSession(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, notFoundOr(err, "ошибка поиска сессии по коду")
	}
	return s, nil
}

func (r *sessionRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM share_sessions WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки кода сессии: %w", err)
	}
	return exists, nil
}

func (r *sessionRepo) Deactivate(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE share_sessions SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return notFoundOr(err, "ошибка деактивации сессии")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepo) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE share_sessions
		SET active = FALSE
		WHERE active AND expires_at IS NOT NULL AND expires_at < $1
		RETURNING id`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка деактивации просроченных сессий: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения деактивированных сессий: %w", err)
	}
	return ids, nil
}

func (r *sessionRepo) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM share_sessions WHERE NOT active AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления неактивных сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	if err := row.Scan(&s.ID, &s.Code, &s.CreatorID, &s.CreatedAt, &s.ExpiresAt, &s.Active); err != nil {
		return nil, err
	}
	return s, nil
}
