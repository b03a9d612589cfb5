package wal

import (
	"encoding/json"
	"time"

	"github.com/strings28/task-shelter/internal/core"
)

type EventType int

const (
	EventUserRegistered EventType = iota
	EventTaskCreated
	EventHistoryAppended
	EventTaskPatched
	EventDeleteToggled
)

type UserRegisteredPayload struct {
	User *core.User `json:"user"`
}

type TaskCreatedPayload struct {
	Task *core.Task `json:"task"`
}

// HistoryAppendedPayload carries the pre-update snapshot. During an
// update it is always written before the matching TaskPatchedPayload
// so replay never observes a patched task without its audit record.
type HistoryAppendedPayload struct {
	Entry *core.TaskHistoryEntry `json:"entry"`
}

type TaskPatchedPayload struct {
	Task *core.Task `json:"task"`
}

type DeleteToggledPayload struct {
	DeletedAt *time.Time `json:"deleted_at"`
}

// Event is one durable record in the append-only log. RecordID is the
// id of the task or user the event belongs to.
type Event struct {
	Version  int       `json:"version"`
	RecordID string    `json:"record_id"`
	Type     EventType `json:"type"`

	CreatedAt time.Time `json:"created_at"`

	Payload json.RawMessage `json:"payload"`
}

// NewEvent encodes payload and wraps it into an Event.
func NewEvent(recordID string, eventType EventType, when time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Version:   CurrentVersion,
		RecordID:  recordID,
		Type:      eventType,
		CreatedAt: when,
		Payload:   data,
	}, nil
}

const CurrentVersion = 1
