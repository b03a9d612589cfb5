package storage

import (
	"context"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage/wal"
)

// TaskQuery selects one owner's tasks for a list view. Deleted picks
// exactly one of the two soft-delete views; the views are never
// combined. SortBy must be a field validated with
// core.IsSortableField before the query reaches a store.
type TaskQuery struct {
	OwnerID    string
	Deleted    bool
	SortBy     string
	Descending bool
	Page       int
	Limit      int
}

// Offset is the number of tasks skipped before the requested page.
func (q TaskQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Store persists the three record kinds: users, tasks and task
// history entries. Implementations MUST be safe for concurrency and
// durable across restarts.
//
// The wal.Event arguments are prebuilt durability events; log-backed
// implementations append them in argument order before the in-memory
// state changes, bolt-backed ones rely on transactions and ignore
// them.
type Store interface {
	// CreateUser fails with a Conflict error when the email is taken.
	CreateUser(ctx context.Context, user *core.User, ev wal.Event) error
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)

	CreateTask(ctx context.Context, task *core.Task, ev wal.Event) error
	GetTask(ctx context.Context, id string) (*core.Task, error)
	// UpdateTask persists the new task state together with entry, the
	// pre-update snapshot. The two MUST commit atomically with the
	// entry ordered first, so a crash never leaves a patched task
	// without its audit record. entry is nil for the delete toggle,
	// which is intentionally unaudited.
	UpdateTask(ctx context.Context, task *core.Task, entry *core.TaskHistoryEntry, evs ...wal.Event) error
	// HistoryByTask returns the task's snapshots newest first.
	HistoryByTask(ctx context.Context, taskID string) ([]*core.TaskHistoryEntry, error)
	// ListTasks returns one page of matching tasks plus the total
	// match count ignoring pagination.
	ListTasks(ctx context.Context, q TaskQuery) ([]*core.Task, int, error)

	Close() error
}

// pageSlice cuts one page out of an already sorted, filtered slice.
// A page past the end yields an empty slice, not an error.
func pageSlice(tasks []*core.Task, q TaskQuery) []*core.Task {
	off := q.Offset()
	if off >= len(tasks) {
		return []*core.Task{}
	}
	end := off + q.Limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[off:end]
}

func matchesQuery(t *core.Task, q TaskQuery) bool {
	if t.OwnerID != q.OwnerID {
		return false
	}
	if q.Deleted {
		return t.DeletedAt != nil
	}
	return t.DeletedAt == nil
}
