package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

func TestSweeperRunOnce_DeactivatesExpired(t *testing.T) {
	env := newTestEnv(t)
	old := env.mustCreate(t, "creator")
	env.clock.Advance(30 * time.Minute)
	fresh := env.mustCreate(t, "creator")
	env.clock.Advance(45 * time.Minute)

	sw := NewExpirySweeper(env.db.repos().Sessions, env.events, env.clock, time.Minute, 0, testLogger())
	result := sw.RunOnce(context.Background())

	if result.Deactivated != 1 {
		t.Errorf("Deactivated: хотели 1, получили %d", result.Deactivated)
	}
	if result.Purged != 0 {
		t.Errorf("Purged: хотели 0, получили %d", result.Purged)
	}
	if env.db.session(old.ID).Active {
		t.Error("истёкшая сессия должна быть деактивирована")
	}
	if !env.db.session(fresh.ID).Active {
		t.Error("неистёкшая сессия должна остаться активной")
	}
}

func TestSweeperRunOnce_PublishesSessionExpired(t *testing.T) {
	env := newTestEnv(t)
	expired := env.mustCreate(t, "creator")
	env.clock.Advance(2 * time.Hour)
	alive := env.mustCreate(t, "creator")
	before := len(env.events.types())

	sw := NewExpirySweeper(env.db.repos().Sessions, env.events, env.clock, time.Minute, 0, testLogger())
	sw.RunOnce(context.Background())

	env.events.mu.Lock()
	published := append([]model.SessionEvent(nil), env.events.events[before:]...)
	env.events.mu.Unlock()

	if len(published) != 1 {
		t.Fatalf("опубликовано %d событий, ожидалось 1: %+v", len(published), published)
	}
	if published[0].Type != model.EventSessionExpired || published[0].SessionID != expired.ID {
		t.Errorf("событие = %+v, ожидалось session_expired для %s", published[0], expired.ID)
	}
	if published[0].SessionID == alive.ID {
		t.Error("активная сессия не должна получать session_expired")
	}
}

func TestSweeperRunOnce_RetentionCascades(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "user")
	env.mustShare(t, s.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")
	if err := env.svc.EndSession(context.Background(), s.ID, "creator"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	active := env.mustCreate(t, "creator")

	env.clock.Advance(25 * time.Hour)
	sw := NewExpirySweeper(env.db.repos().Sessions, env.events, env.clock, time.Minute, 24*time.Hour, testLogger())
	result := sw.RunOnce(context.Background())

	// active истекла в фазе 1 и тоже старше retention
	if result.Deactivated != 1 {
		t.Errorf("Deactivated: хотели 1, получили %d", result.Deactivated)
	}
	if result.Purged != 2 {
		t.Errorf("Purged: хотели 2, получили %d", result.Purged)
	}
	if env.db.session(s.ID) != nil {
		t.Error("старая неактивная сессия должна быть удалена")
	}
	if env.db.participantCount(s.ID, "") != 0 || env.db.sharedCount(s.ID) != 0 {
		t.Error("участники и файлы должны удаляться каскадно")
	}
	if env.db.session(active.ID) != nil {
		t.Error("истёкшая сессия старше retention должна быть удалена")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	sw := NewExpirySweeper(env.db.repos().Sessions, env.events, env.clock, time.Minute, 0, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sw.Start(ctx)
	defer sw.Stop()

	// Ждём, пока горутина заведёт тикер после первого запуска
	if err := env.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("тикер не создан: %v", err)
	}
	if !env.db.session(s.ID).Active {
		t.Fatal("сессия не должна истечь до срока")
	}

	env.clock.Advance(time.Hour + time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for env.db.session(s.ID).Active {
		if time.Now().After(deadline) {
			t.Fatal("sweeper не деактивировал сессию по тику")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
