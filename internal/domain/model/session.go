package model

import "time"

// Session — сессия обмена файлами, идентифицируемая коротким кодом.
// После деактивации (истечение, завершение создателем, фоновая очистка)
// обратно не активируется.
type Session struct {
	// ID — UUID сессии (назначается хранилищем)
	ID string
	// Code — 8-символьный код из [A-Z0-9], уникален среди всех сессий
	Code string
	// CreatorID — пользователь, создавший сессию
	CreatorID string
	// CreatedAt — время создания
	CreatedAt time.Time
	// ExpiresAt — момент истечения (nil — бессрочная)
	ExpiresAt *time.Time
	// Active — сессия принимает новых участников и файлы
	Active bool
}

// ExpiredAt сообщает, истекла ли сессия к моменту now.
// Сессия с ExpiresAt == now ещё не истекла.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// IsCreator сообщает, является ли userID создателем сессии.
func (s *Session) IsCreator(userID string) bool {
	return s.CreatorID == userID
}

// Participant — членство пользователя в сессии.
type Participant struct {
	ID        string
	SessionID string
	UserID    string
	JoinedAt  time.Time
}

// SharedFile — ссылка на файл каталога, расшаренная в сессию.
// Метаданные файла копируются в момент расшаривания.
type SharedFile struct {
	// ID — UUID записи
	ID string
	// SessionID — сессия
	SessionID string
	// FileID — UUID файла в каталоге
	FileID string
	// SharedByUserID — кто расшарил
	SharedByUserID string
	// SharedAt — когда расшарено
	SharedAt time.Time
	// DownloadCount — число успешных скачиваний, только растёт
	DownloadCount int64

	// --- Снимок метаданных файла ---

	FileName    string
	FileSize    int64
	ContentType string
	StorageKey  string
}
