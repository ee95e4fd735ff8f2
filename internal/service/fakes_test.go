package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
)

// --- In-memory хранилище с теми же ограничениями уникальности, что и в БД ---

type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	sessions     map[string]*model.Session
	participants []*model.Participant
	shared       []*model.SharedFile
	files        map[string]*model.FileItem

	// createConflicts — сколько следующих вставок сессии вернут ErrConflict
	createConflicts int
	// failParticipantAdd — ошибка для Participants.Add
	failParticipantAdd error
	// fileGets — количество обращений к FileRepository.GetByID
	fileGets int
}

func newMemDB() *memDB {
	return &memDB{
		sessions: make(map[string]*model.Session),
		files:    make(map[string]*model.FileItem),
	}
}

func (db *memDB) repos() *repository.Repos {
	return &repository.Repos{
		Sessions:     memSessions{db},
		Participants: memParticipants{db},
		SharedFiles:  memShared{db},
		Files:        memFiles{db},
	}
}

// InTx выполняет fn последовательно; при ошибке состояние восстанавливается.
func (db *memDB) InTx(_ context.Context, fn func(*repository.Repos) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	sessions := make(map[string]*model.Session, len(db.sessions))
	for k, v := range db.sessions {
		c := *v
		sessions[k] = &c
	}
	participants := append([]*model.Participant(nil), db.participants...)
	shared := append([]*model.SharedFile(nil), db.shared...)
	db.mu.Unlock()

	if err := fn(db.repos()); err != nil {
		db.mu.Lock()
		db.sessions, db.participants, db.shared = sessions, participants, shared
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) addFile(ownerID, name, key string) *model.FileItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	f := &model.FileItem{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		OriginalFilename: name,
		ContentType:      "text/plain",
		Size:             int64(len(name)),
		StorageKey:       key,
		Status:           model.FileStatusActive,
		CreatedAt:        time.Now().UTC(),
	}
	db.files[f.ID] = f
	return f
}

func (db *memDB) participantCount(sessionID, userID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, p := range db.participants {
		if p.SessionID == sessionID && (userID == "" || p.UserID == userID) {
			n++
		}
	}
	return n
}

func (db *memDB) sharedCount(sessionID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, f := range db.shared {
		if f.SessionID == sessionID {
			n++
		}
	}
	return n
}

func (db *memDB) session(id string) *model.Session {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.sessions[id]; ok {
		c := *s
		return &c
	}
	return nil
}

type memSessions struct{ db *memDB }

func (r memSessions) Create(_ context.Context, s *model.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.createConflicts > 0 {
		r.db.createConflicts--
		return repository.ErrConflict
	}
	for _, existing := range r.db.sessions {
		if existing.Code == s.Code {
			return repository.ErrConflict
		}
	}
	s.ID = uuid.NewString()
	c := *s
	r.db.sessions[s.ID] = &c
	return nil
}

func (r memSessions) GetByID(_ context.Context, id string) (*model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r memSessions) GetActiveByCode(_ context.Context, code string) (*model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.sessions {
		if s.Code == code && s.Active {
			c := *s
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memSessions) CodeExists(_ context.Context, code string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.sessions {
		if s.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r memSessions) Deactivate(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Active = false
	return nil
}

func (r memSessions) DeactivateExpired(_ context.Context, now time.Time) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []string
	for id, s := range r.db.sessions {
		if s.Active && s.ExpiredAt(now) {
			s.Active = false
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r memSessions) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, s := range r.db.sessions {
		if s.Active || !s.CreatedAt.Before(cutoff) {
			continue
		}
		delete(r.db.sessions, id)
		n++

		// Каскад
		participants := r.db.participants[:0]
		for _, p := range r.db.participants {
			if p.SessionID != id {
				participants = append(participants, p)
			}
		}
		r.db.participants = participants
		shared := r.db.shared[:0]
		for _, f := range r.db.shared {
			if f.SessionID != id {
				shared = append(shared, f)
			}
		}
		r.db.shared = shared
	}
	return n, nil
}

type memParticipants struct{ db *memDB }

func (r memParticipants) Add(_ context.Context, p *model.Participant) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failParticipantAdd != nil {
		return false, r.db.failParticipantAdd
	}
	if _, ok := r.db.sessions[p.SessionID]; !ok {
		return false, errors.New("нарушение внешнего ключа")
	}
	for _, existing := range r.db.participants {
		if existing.SessionID == p.SessionID && existing.UserID == p.UserID {
			return false, nil
		}
	}
	c := *p
	c.ID = uuid.NewString()
	p.ID = c.ID
	r.db.participants = append(r.db.participants, &c)
	return true, nil
}

func (r memParticipants) Exists(_ context.Context, sessionID, userID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.participants {
		if p.SessionID == sessionID && p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r memParticipants) ListBySession(_ context.Context, sessionID string) ([]*model.Participant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	result := make([]*model.Participant, 0)
	for _, p := range r.db.participants {
		if p.SessionID == sessionID {
			c := *p
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r memParticipants) Remove(_ context.Context, sessionID, userID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, p := range r.db.participants {
		if p.SessionID == sessionID && p.UserID == userID {
			r.db.participants = append(r.db.participants[:i], r.db.participants[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memShared struct{ db *memDB }

func (r memShared) CreateOrGet(_ context.Context, f *model.SharedFile) (*model.SharedFile, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.shared {
		if existing.SessionID == f.SessionID && existing.FileID == f.FileID {
			c := *existing
			return &c, false, nil
		}
	}
	c := *f
	c.ID = uuid.NewString()
	c.DownloadCount = 0
	r.db.shared = append(r.db.shared, &c)
	out := c
	return &out, true, nil
}

func (r memShared) find(id string) (*model.SharedFile, int) {
	for i, f := range r.db.shared {
		if f.ID == id {
			return f, i
		}
	}
	return nil, -1
}

func (r memShared) GetByID(_ context.Context, id string) (*model.SharedFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, _ := r.find(id)
	if f == nil {
		return nil, repository.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (r memShared) GetBySessionAndFile(_ context.Context, sessionID, fileID string) (*model.SharedFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.shared {
		if f.SessionID == sessionID && f.FileID == fileID {
			c := *f
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memShared) ListBySession(_ context.Context, sessionID string) ([]*model.SharedFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	result := make([]*model.SharedFile, 0)
	for _, f := range r.db.shared {
		if f.SessionID == sessionID {
			c := *f
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r memShared) IncrementDownloadCount(_ context.Context, id string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, _ := r.find(id)
	if f == nil {
		return 0, repository.ErrNotFound
	}
	f.DownloadCount++
	return f.DownloadCount, nil
}

func (r memShared) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, i := r.find(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	r.db.shared = append(r.db.shared[:i], r.db.shared[i+1:]...)
	return nil
}

type memFiles struct{ db *memDB }

func (r memFiles) GetByID(_ context.Context, fileID string) (*model.FileItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.fileGets++
	f, ok := r.db.files[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (r memFiles) MarkDeleted(_ context.Context, fileID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.files[fileID]
	if !ok || f.Status == model.FileStatusDeleted {
		return repository.ErrNotFound
	}
	f.Status = model.FileStatusDeleted
	return nil
}

// --- Объектное хранилище ---

type memObjects struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (s *memObjects) Open(_ context.Context, key string) (*objectstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return &objectstore.Object{Body: io.NopCloser(strings.NewReader(data)), Size: int64(len(data))}, nil
}

// --- Публикатор событий ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) Publish(ev model.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// --- Сборка сервиса ---

type testEnv struct {
	db      *memDB
	objects *memObjects
	events  *recordingPublisher
	clock   *clockwork.FakeClock
	svc     *SessionService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newMemDB()
	objects := &memObjects{objects: make(map[string]string)}
	events := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repos := db.repos()

	svc := NewSessionService(
		repos,
		db,
		NewCatalogCache(repos.Files, 100, time.Minute),
		objects,
		events,
		clock,
		time.Hour,
		testLogger(),
	)
	return &testEnv{db: db, objects: objects, events: events, clock: clock, svc: svc}
}

// mustCreate создаёт сессию и проверяет отсутствие ошибки.
func (e *testEnv) mustCreate(t *testing.T, creatorID string) *model.Session {
	t.Helper()
	s, err := e.svc.CreateSession(context.Background(), creatorID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func (e *testEnv) mustJoin(t *testing.T, code, userID string) *model.Session {
	t.Helper()
	s, err := e.svc.JoinSession(context.Background(), code, userID)
	if err != nil {
		t.Fatalf("JoinSession(%s): %v", userID, err)
	}
	return s
}

func (e *testEnv) mustShare(t *testing.T, sessionID, fileID, userID string) *model.SharedFile {
	t.Helper()
	f, err := e.svc.ShareFile(context.Background(), sessionID, fileID, userID)
	if err != nil {
		t.Fatalf("ShareFile: %v", err)
	}
	return f
}
