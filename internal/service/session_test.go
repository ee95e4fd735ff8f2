package service

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/share-module/internal/codegen"
	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	s := env.mustCreate(t, "creator")

	if !codegen.Valid(s.Code) {
		t.Errorf("код %q не соответствует формату", s.Code)
	}
	if !s.Active {
		t.Error("новая сессия должна быть активной")
	}
	if s.ExpiresAt == nil || !s.ExpiresAt.Equal(env.clock.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, ожидалось now+1h", s.ExpiresAt)
	}
	if n := env.db.participantCount(s.ID, "creator"); n != 1 {
		t.Errorf("создатель должен быть участником, записей: %d", n)
	}
}

func TestCreateSession_UniqueCodes(t *testing.T) {
	env := newTestEnv(t)

	codes := make(map[string]bool)
	for range 200 {
		s := env.mustCreate(t, "creator")
		if codes[s.Code] {
			t.Fatalf("повторный код %q", s.Code)
		}
		codes[s.Code] = true
	}
}

func TestCreateSession_RetriesOnCodeConflict(t *testing.T) {
	env := newTestEnv(t)
	env.db.createConflicts = 2

	s := env.mustCreate(t, "creator")

	if env.db.session(s.ID) == nil {
		t.Fatal("сессия не сохранена после повторов")
	}
	if len(env.db.sessions) != 1 {
		t.Errorf("сессий: %d, ожидалась 1", len(env.db.sessions))
	}
}

func TestCreateSession_AtomicWithCreatorParticipant(t *testing.T) {
	env := newTestEnv(t)
	env.db.failParticipantAdd = errors.New("db down")

	_, err := env.svc.CreateSession(context.Background(), "creator")
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if len(env.db.sessions) != 0 {
		t.Errorf("сессия должна быть откачена, осталось: %d", len(env.db.sessions))
	}
}

func TestJoinSession_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	first := env.mustJoin(t, s.Code, "user")
	second := env.mustJoin(t, s.Code, "user")

	if first.ID != s.ID || second.ID != s.ID {
		t.Errorf("вход должен возвращать ту же сессию")
	}
	if n := env.db.participantCount(s.ID, "user"); n != 1 {
		t.Errorf("записей участника: %d, ожидалась 1", n)
	}

	joined := 0
	for _, typ := range env.events.types() {
		if typ == model.EventParticipantJoined {
			joined++
		}
	}
	if joined != 1 {
		t.Errorf("событий participant_joined: %d, ожидалось 1", joined)
	}
}

func TestJoinSession_CreatorJoinIsNoop(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	env.mustJoin(t, s.Code, "creator")

	if n := env.db.participantCount(s.ID, ""); n != 1 {
		t.Errorf("участников: %d, ожидался 1", n)
	}
}

func TestJoinSession_ConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.JoinSession(context.Background(), s.Code, "user"); err != nil {
				t.Errorf("JoinSession: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := env.db.participantCount(s.ID, "user"); n != 1 {
		t.Errorf("записей участника: %d, ожидалась 1", n)
	}
}

func TestJoinSession_NormalisesCode(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	lower := []byte(s.Code)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}

	got := env.mustJoin(t, "  "+string(lower)+" ", "user")
	if got.ID != s.ID {
		t.Errorf("вход по коду в нижнем регистре вернул другую сессию")
	}
}

func TestJoinSession_NotFound(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	ended := env.mustCreate(t, "creator")
	if err := env.svc.EndSession(context.Background(), ended.ID, "creator"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	tests := []struct {
		name string
		code string
	}{
		{name: "пустой код", code: ""},
		{name: "неверная длина", code: s.Code[:7]},
		{name: "недопустимые символы", code: "ABCD-123"},
		{name: "неизвестный код", code: "0000000Z"},
		{name: "завершённая сессия", code: ended.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.JoinSession(context.Background(), tt.code, "user")
			if !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("ошибка = %v, ожидалась ErrSessionNotFound", err)
			}
		})
	}
}

func TestJoinSession_LazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")

	// До истечения вход работает
	env.clock.Advance(59 * time.Minute)
	env.mustJoin(t, s.Code, "early")

	env.clock.Advance(2 * time.Minute)

	_, err := env.svc.JoinSession(context.Background(), s.Code, "late")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("ошибка = %v, ожидалась ErrSessionExpired", err)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("ErrSessionExpired должна быть ErrInvalidState")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("истечение не должно выглядеть как NotFound")
	}
	if env.db.session(s.ID).Active {
		t.Error("истёкшая сессия должна быть деактивирована")
	}
	if env.db.participantCount(s.ID, "late") != 0 {
		t.Error("опоздавший не должен стать участником")
	}
	if !slices.Contains(env.events.types(), model.EventSessionExpired) {
		t.Error("ожидалось событие session_expired")
	}

	// Дальше сессия неактивна и по коду не находится
	_, err = env.svc.JoinSession(context.Background(), s.Code, "late")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("повторный вход: ошибка = %v, ожидалась ErrSessionNotFound", err)
	}
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "user")

	for _, userID := range []string{"creator", "user"} {
		got, err := env.svc.GetSession(context.Background(), s.ID, userID)
		if err != nil {
			t.Fatalf("GetSession(%s): %v", userID, err)
		}
		if got.Code != s.Code {
			t.Errorf("Code = %q, ожидался %q", got.Code, s.Code)
		}
	}

	// Не-участник и отсутствующая сессия неотличимы
	_, errStranger := env.svc.GetSession(context.Background(), s.ID, "stranger")
	_, errMissing := env.svc.GetSession(context.Background(), "00000000-0000-0000-0000-000000000000", "creator")
	if !errors.Is(errStranger, ErrSessionNotFound) || !errors.Is(errMissing, ErrSessionNotFound) {
		t.Errorf("ожидалась ErrSessionNotFound: stranger=%v missing=%v", errStranger, errMissing)
	}
	if errStranger.Error() != errMissing.Error() {
		t.Errorf("ошибки различаются: %q vs %q", errStranger, errMissing)
	}
}

func TestGetSession_ExpiredButNotCheckedStaysActive(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.clock.Advance(2 * time.Hour)

	got, err := env.svc.GetSession(context.Background(), s.ID, "creator")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !got.Active {
		t.Error("без входа по коду сессия остаётся active")
	}
}

func TestShareFile_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	file := env.db.addFile("creator", "report.pdf", "k/report")

	first := env.mustShare(t, s.ID, file.ID, "creator")
	second := env.mustShare(t, s.ID, file.ID, "creator")

	if first.ID != second.ID {
		t.Errorf("повторное расшаривание вернуло новую запись: %s != %s", second.ID, first.ID)
	}
	if first.DownloadCount != 0 {
		t.Errorf("DownloadCount = %d, ожидался 0", first.DownloadCount)
	}
	if first.FileName != "report.pdf" || first.StorageKey != "k/report" || first.ContentType != "text/plain" {
		t.Errorf("снимок метаданных неполный: %+v", first)
	}
	if n := env.db.sharedCount(s.ID); n != 1 {
		t.Errorf("записей файла: %d, ожидалась 1", n)
	}
}

func TestShareFile_Errors(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "user")
	own := env.db.addFile("user", "own.txt", "k/own")
	foreign := env.db.addFile("other", "foreign.txt", "k/foreign")
	deleted := env.db.addFile("user", "gone.txt", "k/gone")
	deleted.Status = model.FileStatusDeleted

	ended := env.mustCreate(t, "user")
	if err := env.svc.EndSession(context.Background(), ended.ID, "user"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	tests := []struct {
		name      string
		sessionID string
		fileID    string
		userID    string
		want      error
	}{
		{name: "файла нет", sessionID: s.ID, fileID: "00000000-0000-0000-0000-000000000001", userID: "user", want: ErrFileNotFound},
		{name: "чужой файл", sessionID: s.ID, fileID: foreign.ID, userID: "user", want: ErrFileNotFound},
		{name: "удалённый файл", sessionID: s.ID, fileID: deleted.ID, userID: "user", want: ErrFileNotFound},
		{name: "не участник", sessionID: s.ID, fileID: own.ID, userID: "stranger", want: ErrSessionNotFound},
		{name: "сессии нет", sessionID: "missing", fileID: own.ID, userID: "user", want: ErrSessionNotFound},
		{name: "сессия завершена", sessionID: ended.ID, fileID: own.ID, userID: "user", want: ErrSessionInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ShareFile(context.Background(), tt.sessionID, tt.fileID, tt.userID)
			if !errors.Is(err, tt.want) {
				t.Errorf("ошибка = %v, ожидалась %v", err, tt.want)
			}
		})
	}
	if env.db.sharedCount(s.ID) != 0 {
		t.Error("ни один файл не должен быть добавлен")
	}
}

func TestListSharedFilesAndParticipants(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.clock.Advance(time.Second)
	env.mustJoin(t, s.Code, "user")
	f1 := env.mustShare(t, s.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")
	env.clock.Advance(time.Second)
	f2 := env.mustShare(t, s.ID, env.db.addFile("user", "b.txt", "k/b").ID, "user")

	files, err := env.svc.ListSharedFiles(context.Background(), s.ID, "user")
	if err != nil {
		t.Fatalf("ListSharedFiles: %v", err)
	}
	if len(files) != 2 || files[0].ID != f1.ID || files[1].ID != f2.ID {
		t.Errorf("неожиданный список файлов: %+v", files)
	}

	participants, err := env.svc.ListParticipants(context.Background(), s.ID, "creator")
	if err != nil {
		t.Fatalf("ListParticipants: %v", err)
	}
	if len(participants) != 2 || participants[0].UserID != "creator" || participants[1].UserID != "user" {
		t.Errorf("неожиданный список участников: %+v", participants)
	}

	if _, err := env.svc.ListSharedFiles(context.Background(), s.ID, "stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ListSharedFiles для чужого: %v", err)
	}
	if _, err := env.svc.ListParticipants(context.Background(), s.ID, "stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ListParticipants для чужого: %v", err)
	}
}

func TestLeaveSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "u1")
	env.mustJoin(t, s.Code, "u2")

	err := env.svc.LeaveSession(context.Background(), s.ID, "creator")
	if !errors.Is(err, ErrCreatorCannotLeave) {
		t.Fatalf("ошибка = %v, ожидалась ErrCreatorCannotLeave", err)
	}

	if err := env.svc.LeaveSession(context.Background(), s.ID, "u1"); err != nil {
		t.Fatalf("LeaveSession: %v", err)
	}
	if env.db.participantCount(s.ID, "u1") != 0 {
		t.Error("u1 должен быть удалён")
	}
	if env.db.participantCount(s.ID, "") != 2 {
		t.Error("остальные участники должны остаться")
	}

	// Не участник — no-op
	if err := env.svc.LeaveSession(context.Background(), s.ID, "u1"); err != nil {
		t.Errorf("повторный выход: %v", err)
	}

	if err := env.svc.LeaveSession(context.Background(), "missing", "u2"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("выход из несуществующей сессии: %v", err)
	}
}

func TestGetSharedFile_Linkage(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.mustCreate(t, "creator")
	s2 := env.mustCreate(t, "creator")
	f := env.mustShare(t, s1.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")

	got, err := env.svc.GetSharedFile(context.Background(), s1.ID, f.ID, "creator")
	if err != nil {
		t.Fatalf("GetSharedFile: %v", err)
	}
	if got.ID != f.ID {
		t.Errorf("ID = %s, ожидался %s", got.ID, f.ID)
	}

	if _, err := env.svc.GetSharedFile(context.Background(), s2.ID, f.ID, "creator"); !errors.Is(err, ErrSharedFileNotFound) {
		t.Errorf("файл через чужую сессию: %v", err)
	}
	if _, err := env.svc.GetSharedFile(context.Background(), s1.ID, "missing", "creator"); !errors.Is(err, ErrSharedFileNotFound) {
		t.Errorf("несуществующий файл: %v", err)
	}
	if _, err := env.svc.GetSharedFile(context.Background(), s1.ID, f.ID, "stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("чужой пользователь: %v", err)
	}
}

func TestIncrementDownloadCount(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "user")
	f := env.mustShare(t, s.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")

	for i := int64(1); i <= 3; i++ {
		got, err := env.svc.IncrementDownloadCount(context.Background(), s.ID, f.ID, "user")
		if err != nil {
			t.Fatalf("IncrementDownloadCount: %v", err)
		}
		if got.DownloadCount != i {
			t.Errorf("DownloadCount = %d, ожидался %d", got.DownloadCount, i)
		}
	}

	if _, err := env.svc.IncrementDownloadCount(context.Background(), s.ID, f.ID, "stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("чужой пользователь: %v", err)
	}
}

func TestRemoveSharedFile_Authorization(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "sharer")
	env.mustJoin(t, s.Code, "third")

	byCreatorRemoval := env.mustShare(t, s.ID, env.db.addFile("sharer", "a.txt", "k/a").ID, "sharer")
	bySharerRemoval := env.mustShare(t, s.ID, env.db.addFile("sharer", "b.txt", "k/b").ID, "sharer")

	err := env.svc.RemoveSharedFile(context.Background(), s.ID, bySharerRemoval.ID, "third")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("третий участник: ошибка = %v, ожидалась ErrNotAuthorized", err)
	}

	if err := env.svc.RemoveSharedFile(context.Background(), s.ID, bySharerRemoval.ID, "sharer"); err != nil {
		t.Errorf("расшаривший: %v", err)
	}
	if err := env.svc.RemoveSharedFile(context.Background(), s.ID, byCreatorRemoval.ID, "creator"); err != nil {
		t.Errorf("создатель: %v", err)
	}
	if n := env.db.sharedCount(s.ID); n != 0 {
		t.Errorf("осталось файлов: %d", n)
	}

	err = env.svc.RemoveSharedFile(context.Background(), s.ID, byCreatorRemoval.ID, "creator")
	if !errors.Is(err, ErrSharedFileNotFound) {
		t.Errorf("повторное удаление: %v", err)
	}
}

func TestRemoveSharedFile_InactiveSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	f := env.mustShare(t, s.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")
	if err := env.svc.EndSession(context.Background(), s.ID, "creator"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	err := env.svc.RemoveSharedFile(context.Background(), s.ID, f.ID, "creator")
	if !errors.Is(err, ErrSessionInactive) {
		t.Errorf("ошибка = %v, ожидалась ErrSessionInactive", err)
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	env.mustJoin(t, s.Code, "user")

	if err := env.svc.EndSession(context.Background(), s.ID, "user"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("участник: ошибка = %v, ожидалась ErrNotAuthorized", err)
	}
	if !env.db.session(s.ID).Active {
		t.Fatal("сессия не должна завершиться от участника")
	}

	if err := env.svc.EndSession(context.Background(), s.ID, "creator"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if env.db.session(s.ID).Active {
		t.Error("сессия должна быть неактивной")
	}
	if err := env.svc.EndSession(context.Background(), s.ID, "creator"); err != nil {
		t.Errorf("повторное завершение: %v", err)
	}

	ended := 0
	for _, typ := range env.events.types() {
		if typ == model.EventSessionEnded {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("событий session_ended: %d, ожидалось 1", ended)
	}

	// Участник видит завершённую сессию
	got, err := env.svc.GetSession(context.Background(), s.ID, "user")
	if err != nil || got.Active {
		t.Errorf("GetSession после завершения: %+v, %v", got, err)
	}
}

// TestEndToEnd — полный сценарий: создание, вход, расшаривание,
// скачивание, выход, завершение.
func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// C создаёт сессию
	s := env.mustCreate(t, "C")
	if len(s.Code) != codegen.Length {
		t.Fatalf("длина кода %d", len(s.Code))
	}

	// U входит по коду
	env.mustJoin(t, s.Code, "U")
	if env.db.participantCount(s.ID, "U") != 1 {
		t.Fatal("U должен стать участником")
	}

	// C расшаривает F1
	f1 := env.db.addFile("C", "f1.txt", "k/f1")
	env.objects.objects["k/f1"] = "content"
	s1 := env.mustShare(t, s.ID, f1.ID, "C")
	if s1.DownloadCount != 0 {
		t.Fatalf("DownloadCount = %d", s1.DownloadCount)
	}

	// U скачивает S1
	dl, err := env.svc.OpenSharedFile(ctx, s.ID, s1.ID, "U")
	if err != nil {
		t.Fatalf("OpenSharedFile: %v", err)
	}
	data, _ := io.ReadAll(dl)
	_ = dl.Close()
	if string(data) != "content" {
		t.Errorf("содержимое = %q", data)
	}
	if dl.SharedFile.DownloadCount != 1 {
		t.Errorf("DownloadCount = %d, ожидался 1", dl.SharedFile.DownloadCount)
	}

	// U выходит, S1 не затронут
	if err := env.svc.LeaveSession(ctx, s.ID, "U"); err != nil {
		t.Fatalf("LeaveSession: %v", err)
	}
	files, err := env.svc.ListSharedFiles(ctx, s.ID, "C")
	if err != nil || len(files) != 1 || files[0].DownloadCount != 1 {
		t.Fatalf("файлы после выхода: %+v, %v", files, err)
	}

	// C завершает сессию
	if err := env.svc.EndSession(ctx, s.ID, "C"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	// Вход по коду больше не работает
	if _, err := env.svc.JoinSession(ctx, s.Code, "U"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("вход после завершения: %v", err)
	}
}

func TestOpenSharedFile_LazyCleanup(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	file := env.db.addFile("creator", "gone.txt", "k/gone")
	f := env.mustShare(t, s.ID, file.ID, "creator")

	_, err := env.svc.OpenSharedFile(context.Background(), s.ID, f.ID, "creator")
	if !errors.Is(err, ErrFileContentMissing) {
		t.Fatalf("ошибка = %v, ожидалась ErrFileContentMissing", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("ErrFileContentMissing должна быть NotFound")
	}
	if env.db.files[file.ID].Status != model.FileStatusDeleted {
		t.Error("файл каталога должен быть помечен удалённым")
	}

	got, _ := env.svc.GetSharedFile(context.Background(), s.ID, f.ID, "creator")
	if got.DownloadCount != 0 {
		t.Errorf("счётчик не должен расти при неудаче: %d", got.DownloadCount)
	}

	// Повторно расшарить удалённый файл нельзя: кэш каталога инвалидирован
	s2 := env.mustCreate(t, "creator")
	if _, err := env.svc.ShareFile(context.Background(), s2.ID, file.ID, "creator"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("расшаривание удалённого файла: %v", err)
	}
}

func TestOpenSharedFile_StorageErrors(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	f := env.mustShare(t, s.ID, env.db.addFile("creator", "a.txt", "k/a").ID, "creator")

	env.objects.err = objectstore.ErrUnavailable
	if _, err := env.svc.OpenSharedFile(context.Background(), s.ID, f.ID, "creator"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("breaker open: %v", err)
	}

	env.objects.err = errors.New("io error")
	_, err := env.svc.OpenSharedFile(context.Background(), s.ID, f.ID, "creator")
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("прочая ошибка хранилища: %v", err)
	}

	if _, err := env.svc.OpenSharedFile(context.Background(), s.ID, f.ID, "stranger"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("чужой пользователь: %v", err)
	}
}

func TestOpenSharedFile_Metadata(t *testing.T) {
	env := newTestEnv(t)
	s := env.mustCreate(t, "creator")
	f := env.mustShare(t, s.ID, env.db.addFile("creator", "notes.txt", "k/notes").ID, "creator")
	env.objects.objects["k/notes"] = "hello"

	dl, err := env.svc.OpenSharedFile(context.Background(), s.ID, f.ID, "creator")
	if err != nil {
		t.Fatalf("OpenSharedFile: %v", err)
	}
	defer dl.Close()

	if dl.FileName != "notes.txt" || dl.ContentType != "text/plain" || dl.Size != 5 {
		t.Errorf("метаданные: name=%q type=%q size=%d", dl.FileName, dl.ContentType, dl.Size)
	}
	if err := dl.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Повторный Close безопасен
	if err := dl.Close(); err != nil {
		t.Errorf("повторный Close: %v", err)
	}
}
