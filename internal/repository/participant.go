package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// ParticipantRepository — членство пользователей в сессиях.
type ParticipantRepository interface {
	// Add добавляет участника. Если пара (session, user) уже есть —
	// ничего не меняет и возвращает false.
	Add(ctx context.Context, p *model.Participant) (bool, error)
	// Exists проверяет членство пользователя в сессии.
	Exists(ctx context.Context, sessionID, userID string) (bool, error)
	// ListBySession возвращает участников в порядке вступления.
	ListBySession(ctx context.Context, sessionID string) ([]*model.Participant, error)
	// Remove удаляет участника; false — записи не было.
	Remove(ctx context.Context, sessionID, userID string) (bool, error)
}

type participantRepo struct {
	db DBTX
}

// NewParticipantRepository создаёт репозиторий участников.
func NewParticipantRepository(db DBTX) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) Add(ctx context.Context, p *model.Participant) (bool, error) {
	query := `
		INSERT INTO share_participants (session_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO NOTHING
		RETURNING id`

	err := r.db.QueryRow(ctx, query, p.SessionID, p.UserID, p.JoinedAt).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка добавления участника: %w", err)
	}
	return true, nil
}

func (r *participantRepo) Exists(ctx context.Context, sessionID, userID string) (bool, error) {
	if !isUUID(sessionID) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM share_participants WHERE session_id = $1 AND user_id = $2)`,
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки участника: %w", err)
	}
	return exists, nil
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	if !isUUID(sessionID) {
		return []*model.Participant{}, nil
	}
	query := `
		SELECT id, session_id, user_id, joined_at
		FROM share_participants
		WHERE session_id = $1
		ORDER BY joined_at, id`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участников: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Participant, 0)
	for rows.Next() {
		p := &model.Participant{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования участника: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации участников: %w", err)
	}
	return result, nil
}

func (r *participantRepo) Remove(ctx context.Context, sessionID, userID string) (bool, error) {
	if !isUUID(sessionID) {
		return false, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM share_participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления участника: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
