package model

import "time"

// EventType — тип события сессии, рассылаемого подписчикам.
type EventType string

// Типы событий сессии.
const (
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventFileShared        EventType = "file_shared"
	EventFileRemoved       EventType = "file_removed"
	EventFileDownloaded    EventType = "file_downloaded"
	EventSessionEnded      EventType = "session_ended"
	EventSessionExpired    EventType = "session_expired"
)

// SessionEvent — уведомление об изменении состояния сессии.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	// UserID — инициатор события
	UserID       string    `json:"user_id,omitempty"`
	SharedFileID string    `json:"shared_file_id,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	At           time.Time `json:"at"`
}
