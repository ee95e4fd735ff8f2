// session.go — SessionService: жизненный цикл сессий обмена и все
// операции с проверкой прав. Сервис не хранит состояния: права и статус
// сессии перепроверяются при каждом вызове.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/goartstore/share-module/internal/codegen"
	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
)

// EventPublisher получает события сессий после успешных изменений.
type EventPublisher interface {
	Publish(ev model.SessionEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(model.SessionEvent) {}

// SessionService — менеджер сессий обмена файлами.
type SessionService struct {
	repos   *repository.Repos
	tx      repository.Transactor
	codes   *codegen.Generator
	catalog FileCatalog
	objects objectstore.Store
	events  EventPublisher
	clock   clockwork.Clock
	ttl     time.Duration
	logger  *slog.Logger
}

// NewSessionService создаёт сервис сессий.
// ttl — время жизни новой сессии (SM_SESSION_TTL).
// events может быть nil — события тогда не публикуются.
func NewSessionService(
	repos *repository.Repos,
	tx repository.Transactor,
	catalog FileCatalog,
	objects objectstore.Store,
	events EventPublisher,
	clock clockwork.Clock,
	ttl time.Duration,
	logger *slog.Logger,
) *SessionService {
	if events == nil {
		events = noopPublisher{}
	}
	return &SessionService{
		repos:   repos,
		tx:      tx,
		codes:   codegen.New(repos.Sessions),
		catalog: catalog,
		objects: objects,
		events:  events,
		clock:   clock,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "session_service")),
	}
}

// CreateSession создаёт сессию с новым кодом и записывает создателя
// участником в той же транзакции.
func (s *SessionService) CreateSession(ctx context.Context, creatorID string) (*model.Session, error) {
	for {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("генерация кода сессии: %w", err)
		}

		now := s.now()
		expiresAt := now.Add(s.ttl)
		session := &model.Session{
			Code:      code,
			CreatorID: creatorID,
			CreatedAt: now,
			ExpiresAt: &expiresAt,
			Active:    true,
		}

		err = s.tx.InTx(ctx, func(r *repository.Repos) error {
			if err := r.Sessions.Create(ctx, session); err != nil {
				return err
			}
			_, err := r.Participants.Add(ctx, &model.Participant{
				SessionID: session.ID,
				UserID:    creatorID,
				JoinedAt:  now,
			})
			return err
		})
		if errors.Is(err, repository.ErrConflict) {
			// Код заняли между проверкой и вставкой
			codeConflictsTotal.Inc()
			s.logger.Debug("Конфликт кода сессии, повтор", slog.String("code", code))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("создание сессии: %w", err)
		}

		sessionsCreatedTotal.Inc()
		s.logger.Info("Сессия создана",
			slog.String("session_id", session.ID),
			slog.String("creator_id", creatorID),
			slog.Time("expires_at", expiresAt),
		)
		return session, nil
	}
}

// JoinSession добавляет пользователя в активную сессию по коду.
// Истёкшая сессия деактивируется при попытке входа (ленивое истечение).
// Повторный вход не создаёт дубликат и возвращает ту же сессию.
func (s *SessionService) JoinSession(ctx context.Context, code, userID string) (*model.Session, error) {
	code = codegen.Normalize(code)
	if !codegen.Valid(code) {
		sessionJoinsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrSessionNotFound
	}

	session, err := s.repos.Sessions.GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			sessionJoinsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("поиск сессии по коду: %w", err)
	}

	now := s.now()
	if session.ExpiredAt(now) {
		if err := s.deactivate(ctx, session, "expired"); err != nil {
			return nil, err
		}
		sessionJoinsTotal.WithLabelValues("expired").Inc()
		return nil, ErrSessionExpired
	}

	added, err := s.repos.Participants.Add(ctx, &model.Participant{
		SessionID: session.ID,
		UserID:    userID,
		JoinedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("добавление участника: %w", err)
	}

	if added {
		sessionJoinsTotal.WithLabelValues("joined").Inc()
		s.logger.Info("Участник вошёл в сессию",
			slog.String("session_id", session.ID),
			slog.String("user_id", userID),
		)
		s.publish(model.EventParticipantJoined, session.ID, userID, nil)
	} else {
		sessionJoinsTotal.WithLabelValues("already_joined").Inc()
	}
	return session, nil
}

// GetSession возвращает сессию участнику. Для остальных сессия
// не существует.
func (s *SessionService) GetSession(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	return s.sessionForParticipant(ctx, sessionID, userID)
}

// ShareFile добавляет файл из каталога в активную сессию.
// Повторное добавление того же файла возвращает существующую запись.
func (s *SessionService) ShareFile(ctx context.Context, sessionID, fileID, userID string) (*model.SharedFile, error) {
	session, err := s.sessionForParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, ErrSessionInactive
	}

	file, err := s.catalog.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("получение файла из каталога: %w", err)
	}
	if !file.IsActive() || file.OwnerID != userID {
		s.logger.Debug("Файл недоступен для расшаривания",
			slog.String("file_id", fileID),
			slog.String("user_id", userID),
			slog.String("status", file.Status),
		)
		return nil, ErrFileNotFound
	}

	shared, created, err := s.repos.SharedFiles.CreateOrGet(ctx, &model.SharedFile{
		SessionID:      session.ID,
		FileID:         file.ID,
		SharedByUserID: userID,
		SharedAt:       s.now(),
		FileName:       file.OriginalFilename,
		FileSize:       file.Size,
		ContentType:    file.ContentType,
		StorageKey:     file.StorageKey,
	})
	if err != nil {
		return nil, fmt.Errorf("добавление файла в сессию: %w", err)
	}

	if created {
		filesSharedTotal.Inc()
		s.logger.Info("Файл добавлен в сессию",
			slog.String("session_id", session.ID),
			slog.String("shared_file_id", shared.ID),
			slog.String("file_id", file.ID),
			slog.String("user_id", userID),
		)
		s.publish(model.EventFileShared, session.ID, userID, shared)
	}
	return shared, nil
}

// ListSharedFiles возвращает файлы сессии в порядке добавления.
func (s *SessionService) ListSharedFiles(ctx context.Context, sessionID, userID string) ([]*model.SharedFile, error) {
	if _, err := s.sessionForParticipant(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	files, err := s.repos.SharedFiles.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("список файлов сессии: %w", err)
	}
	return files, nil
}

// ListParticipants возвращает участников сессии в порядке входа.
func (s *SessionService) ListParticipants(ctx context.Context, sessionID, userID string) ([]*model.Participant, error) {
	if _, err := s.sessionForParticipant(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	participants, err := s.repos.Participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("список участников сессии: %w", err)
	}
	return participants, nil
}

// LeaveSession удаляет вызывающего из участников. Создатель выйти не может.
// Выход не-участника ничего не меняет.
func (s *SessionService) LeaveSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsCreator(userID) {
		return ErrCreatorCannotLeave
	}

	removed, err := s.repos.Participants.Remove(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("удаление участника: %w", err)
	}
	if removed {
		s.logger.Info("Участник покинул сессию",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
		)
		s.publish(model.EventParticipantLeft, sessionID, userID, nil)
	}
	return nil
}

// GetSharedFile возвращает файл сессии участнику.
func (s *SessionService) GetSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) (*model.SharedFile, error) {
	if _, err := s.sessionForParticipant(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.sharedFileInSession(ctx, sessionID, sharedFileID)
}

// IncrementDownloadCount перепроверяет доступ и увеличивает счётчик
// скачиваний ровно на 1.
func (s *SessionService) IncrementDownloadCount(ctx context.Context, sessionID, sharedFileID, userID string) (*model.SharedFile, error) {
	shared, err := s.GetSharedFile(ctx, sessionID, sharedFileID, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.repos.SharedFiles.IncrementDownloadCount(ctx, shared.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Удалён между проверкой и обновлением
			return nil, ErrSharedFileNotFound
		}
		return nil, fmt.Errorf("обновление счётчика скачиваний: %w", err)
	}
	shared.DownloadCount = count

	s.publish(model.EventFileDownloaded, sessionID, userID, shared)
	return shared, nil
}

// RemoveSharedFile удаляет файл из активной сессии. Разрешено тому,
// кто расшарил файл, и создателю сессии.
func (s *SessionService) RemoveSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) error {
	session, err := s.sessionForParticipant(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !session.Active {
		return ErrSessionInactive
	}

	shared, err := s.sharedFileInSession(ctx, sessionID, sharedFileID)
	if err != nil {
		return err
	}
	if shared.SharedByUserID != userID && !session.IsCreator(userID) {
		return ErrOnlySharerOrCreator
	}

	if err := s.repos.SharedFiles.Delete(ctx, shared.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSharedFileNotFound
		}
		return fmt.Errorf("удаление файла из сессии: %w", err)
	}

	filesRemovedTotal.Inc()
	s.logger.Info("Файл удалён из сессии",
		slog.String("session_id", sessionID),
		slog.String("shared_file_id", shared.ID),
		slog.String("user_id", userID),
	)
	s.publish(model.EventFileRemoved, sessionID, userID, shared)
	return nil
}

// EndSession завершает сессию. Только для создателя; повторный вызов не ошибка.
func (s *SessionService) EndSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsCreator(userID) {
		return ErrOnlyCreator
	}
	if !session.Active {
		return nil
	}
	return s.deactivate(ctx, session, "ended")
}

// --- Вспомогательные методы ---

func (s *SessionService) now() time.Time {
	return s.clock.Now().UTC()
}

// getSession загружает сессию без проверки членства.
func (s *SessionService) getSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("получение сессии: %w", err)
	}
	return session, nil
}

// sessionForParticipant загружает сессию и проверяет членство.
// Не-участник получает ErrSessionNotFound, причина пишется в debug-лог.
func (s *SessionService) sessionForParticipant(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ok, err := s.repos.Participants.Exists(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("проверка участника: %w", err)
	}
	if !ok {
		s.logger.Debug("Доступ к сессии отклонён",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
			slog.String("reason", errNotParticipant.Error()),
		)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// sharedFileInSession загружает файл сессии и проверяет, что он
// принадлежит именно этой сессии.
func (s *SessionService) sharedFileInSession(ctx context.Context, sessionID, sharedFileID string) (*model.SharedFile, error) {
	shared, err := s.repos.SharedFiles.GetByID(ctx, sharedFileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSharedFileNotFound
		}
		return nil, fmt.Errorf("получение файла сессии: %w", err)
	}
	if shared.SessionID != sessionID {
		s.logger.Debug("Файл запрошен через чужую сессию",
			slog.String("session_id", sessionID),
			slog.String("shared_file_id", sharedFileID),
			slog.String("reason", errSharedFileOtherSession.Error()),
		)
		return nil, ErrSharedFileNotFound
	}
	return shared, nil
}

// deactivate снимает флаг active и публикует событие.
func (s *SessionService) deactivate(ctx context.Context, session *model.Session, reason string) error {
	if err := s.repos.Sessions.Deactivate(ctx, session.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("деактивация сессии: %w", err)
	}
	session.Active = false

	sessionDeactivationsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Сессия деактивирована",
		slog.String("session_id", session.ID),
		slog.String("reason", reason),
	)

	evType := model.EventSessionEnded
	if reason == "expired" {
		evType = model.EventSessionExpired
	}
	s.publish(evType, session.ID, "", nil)
	return nil
}

func (s *SessionService) publish(t model.EventType, sessionID, userID string, shared *model.SharedFile) {
	ev := model.SessionEvent{
		Type:      t,
		SessionID: sessionID,
		UserID:    userID,
		At:        s.now(),
	}
	if shared != nil {
		ev.SharedFileID = shared.ID
		ev.FileName = shared.FileName
	}
	s.events.Publish(ev)
}
