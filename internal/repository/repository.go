// Пакет repository — слой доступа к данным PostgreSQL для Share Module.
// Владеет таблицами share_sessions, share_participants, share_files;
// file_items (каталог основного приложения) только читает и помечает удалённые.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение ограничения уникальности.
	ErrConflict = errors.New("конфликт уникальности")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos — набор репозиториев поверх одного DBTX (пула или транзакции).
type Repos struct {
	Sessions     SessionRepository
	Participants ParticipantRepository
	SharedFiles  SharedFileRepository
	Files        FileRepository
}

// NewRepos создаёт набор репозиториев поверх db.
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Sessions:     NewSessionRepository(db),
		Participants: NewParticipantRepository(db),
		SharedFiles:  NewSharedFileRepository(db),
		Files:        NewFileRepository(db),
	}
}

// Transactor выполняет fn в одной транзакции с репозиториями,
// привязанными к этой транзакции.
type Transactor interface {
	InTx(ctx context.Context, fn func(repos *Repos) error) error
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// InTx реализует Transactor поверх RunInTx.
func (r *TxRunner) InTx(ctx context.Context, fn func(repos *Repos) error) error {
	return r.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidText проверяет, отклонил ли PostgreSQL значение как некорректный литерал
// (например, строка не является UUID). Для поиска по id это равносильно отсутствию записи.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}

// notFoundOr приводит отсутствие строки к ErrNotFound, остальное оборачивает.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isUUID проверяет, что строка — корректный UUID. Некорректный id
// заведомо не может ссылаться на запись, запрос к БД не выполняется.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
