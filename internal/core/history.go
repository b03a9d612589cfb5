package core

import (
	"sort"
	"time"
)

// TaskHistoryEntry is an immutable snapshot of a task's state taken
// immediately before an update was applied. Entries are append-only:
// once written they are never modified or removed.
type TaskHistoryEntry struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	ActorID string `json:"user_id"`

	// Snapshot of the task's pre-update state.
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// CreatedAt is the moment the snapshot was taken, not copied from
	// the task.
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotTask builds a history entry from the task's current state.
func SnapshotTask(id, actorID string, t *Task, now time.Time) *TaskHistoryEntry {
	return &TaskHistoryEntry{
		ID:          id,
		TaskID:      t.ID,
		ActorID:     actorID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		DueDate:     copyTime(t.DueDate),
		DeletedAt:   copyTime(t.DeletedAt),
		CreatedAt:   now,
	}
}

func (e *TaskHistoryEntry) CloneEntry() *TaskHistoryEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.DueDate = copyTime(e.DueDate)
	c.DeletedAt = copyTime(e.DeletedAt)
	return &c
}

func CloneHistory(entries []*TaskHistoryEntry) []*TaskHistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	res := make([]*TaskHistoryEntry, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.CloneEntry())
	}
	return res
}

// SortHistory orders entries newest first, with ID as tiebreaker.
// Readers always see the chain in reverse-chronological order.
func SortHistory(entries []*TaskHistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
