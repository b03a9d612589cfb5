package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage"
	"github.com/strings28/task-shelter/internal/storage/wal"
)

// CreateTaskInput carries the wire-shaped fields for a new task.
// Status and DueDate are textual; they are validated and parsed here,
// before any store write.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      string
	DueDate     string
}

// UpdateTaskInput is a partial patch. Nil fields are left unchanged.
// Delete carries the deletedAt boolean intent: true stamps the task
// deleted at "now", false or nil leaves DeletedAt as it is.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	DueDate     *string
	Delete      *bool
}

// ListQuery selects a page of one owner's tasks.
type ListQuery struct {
	Page      int
	Limit     int
	Deleted   bool
	SortBy    string
	SortOrder string
}

// TaskPage is one list view page plus the totals callers derive
// pagination UI from.
type TaskPage struct {
	Tasks      []*core.Task
	TotalTasks int
	TotalPages int
}

// TaskService owns the task lifecycle: create, read, update with
// audit history, delete toggle, and list views. It is stateless per
// call; the acting user is always an explicit parameter.
type TaskService struct {
	store storage.Store
	idGen IDGenerator
	now   func() time.Time
}

func NewTaskService(store storage.Store, idGen IDGenerator, now func() time.Time) (*TaskService, error) {
	const op = "service.NewTaskService"
	if store == nil {
		return nil, core.NewInternalError("task store required", nil, op)
	}
	if idGen == nil {
		return nil, core.NewInternalError("id gen required", nil, op)
	}
	if now == nil {
		now = time.Now
	}
	return &TaskService{
		store: store,
		idGen: idGen,
		now:   now,
	}, nil
}

// Create makes a live task owned by ownerID. The owner must exist.
// No history entry is written: a new task has no prior state to log.
func (ts *TaskService) Create(ctx context.Context, ownerID string, in CreateTaskInput) (*core.Task, error) {
	const op = "service.TaskService.Create"

	if err := ctx.Err(); err != nil {
		return nil, core.NewInternalError("ctx error", err, op)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, core.NewValidationError("title is required", nil, op)
	}

	status := core.TaskStatusTodo
	if in.Status != "" {
		parsed, ok := core.ParseTaskStatus(in.Status)
		if !ok {
			return nil, core.NewValidationError("unknown status "+in.Status, nil, op)
		}
		status = parsed
	}

	due, err := parseDueDate(in.DueDate, op)
	if err != nil {
		return nil, err
	}

	if _, err := ts.store.GetUser(ctx, ownerID); err != nil {
		return nil, tryAsAppError(err, op)
	}

	id, genErr := ts.idGen.NewID()
	if genErr != nil {
		return nil, core.NewInternalError("gen id error", genErr, op)
	}

	now := ts.now().UTC()
	t := core.NewTask(id, ownerID, &now, title)
	t.Description = strings.TrimSpace(in.Description)
	t.Status = status
	t.DueDate = due

	ev, evErr := wal.NewEvent(id, wal.EventTaskCreated, now, wal.TaskCreatedPayload{Task: t})
	if evErr != nil {
		return nil, core.NewInternalError("encode task_created", evErr, op)
	}
	if err := ts.store.CreateTask(ctx, t.CloneTask(), ev); err != nil {
		return nil, tryAsAppError(err, op)
	}

	return t.CloneTask(), nil
}

// Get returns the task with its history entries, newest first.
func (ts *TaskService) Get(ctx context.Context, actorID, taskID string) (*core.Task, error) {
	const op = "service.TaskService.Get"

	if err := ctx.Err(); err != nil {
		return nil, core.NewInternalError("ctx error", err, op)
	}

	t, err := ts.loadOwnedTask(ctx, actorID, taskID, op)
	if err != nil {
		return nil, err
	}
	return ts.attachHistory(ctx, t, op)
}

// Update appends a pre-update snapshot of the task to its history,
// stamped with the acting user and the current moment, then merges
// the patch. Snapshot and patch commit atomically in the store, the
// snapshot ordered first. Every update logs exactly one entry, even
// when the patch changes nothing.
func (ts *TaskService) Update(ctx context.Context, actorID, taskID string, in UpdateTaskInput) (*core.Task, error) {
	const op = "service.TaskService.Update"

	if err := ctx.Err(); err != nil {
		return nil, core.NewInternalError("ctx error", err, op)
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, core.NewValidationError("title cannot be empty", nil, op)
	}
	var status *core.TaskStatus
	if in.Status != nil {
		parsed, ok := core.ParseTaskStatus(*in.Status)
		if !ok {
			return nil, core.NewValidationError("unknown status "+*in.Status, nil, op)
		}
		status = &parsed
	}
	var due *time.Time
	if in.DueDate != nil {
		parsed, err := parseDueDate(*in.DueDate, op)
		if err != nil {
			return nil, err
		}
		due = parsed
	}

	t, err := ts.loadOwnedTask(ctx, actorID, taskID, op)
	if err != nil {
		return nil, err
	}

	now := ts.now().UTC()

	entryID, genErr := ts.idGen.NewID()
	if genErr != nil {
		return nil, core.NewInternalError("gen id error", genErr, op)
	}
	entry := core.SnapshotTask(entryID, actorID, t, now)

	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if status != nil {
		t.Status = *status
	}
	if in.DueDate != nil {
		t.DueDate = due
	}
	if in.Delete != nil && *in.Delete {
		t.DeletedAt = &now
	}
	t.UpdatedAt = &now

	evs, evErr := buildUpdateEvents(t, entry, now)
	if evErr != nil {
		return nil, core.NewInternalError("encode update events", evErr, op)
	}
	if err := ts.store.UpdateTask(ctx, t.CloneTask(), entry, evs...); err != nil {
		return nil, tryAsAppError(err, op)
	}

	return t.CloneTask(), nil
}

// DeleteToggle flips the soft-delete state: a live task is stamped
// deleted at "now", a deleted one is restored. No history entry is
// written; the toggle is deliberately unaudited, unlike Update.
// Calling it twice returns the task to its original liveness.
func (ts *TaskService) DeleteToggle(ctx context.Context, actorID, taskID string) (*core.Task, error) {
	const op = "service.TaskService.DeleteToggle"

	if err := ctx.Err(); err != nil {
		return nil, core.NewInternalError("ctx error", err, op)
	}

	t, err := ts.loadOwnedTask(ctx, actorID, taskID, op)
	if err != nil {
		return nil, err
	}

	now := ts.now().UTC()
	if t.DeletedAt != nil {
		t.DeletedAt = nil
	} else {
		t.DeletedAt = &now
	}
	t.UpdatedAt = &now

	ev, evErr := wal.NewEvent(t.ID, wal.EventDeleteToggled, now,
		wal.DeleteToggledPayload{DeletedAt: t.DeletedAt})
	if evErr != nil {
		return nil, core.NewInternalError("encode delete_toggled", evErr, op)
	}
	if err := ts.store.UpdateTask(ctx, t.CloneTask(), nil, ev); err != nil {
		return nil, tryAsAppError(err, op)
	}

	return t.CloneTask(), nil
}

// List returns one page of the owner's tasks in the requested
// soft-delete view, each with its history attached, plus totals.
func (ts *TaskService) List(ctx context.Context, ownerID string, q ListQuery) (*TaskPage, error) {
	const op = "service.TaskService.List"

	if err := ctx.Err(); err != nil {
		return nil, core.NewInternalError("ctx error", err, op)
	}

	if q.Page < 1 {
		return nil, core.NewValidationError("page must be >= 1", nil, op)
	}
	if q.Limit < 1 {
		return nil, core.NewValidationError("limit must be >= 1", nil, op)
	}
	if !core.IsSortableField(q.SortBy) {
		return nil, core.NewValidationError("unknown sort field "+q.SortBy, nil, op)
	}
	var descending bool
	switch q.SortOrder {
	case "asc":
	case "desc":
		descending = true
	default:
		return nil, core.NewValidationError("sort order must be asc or desc", nil, op)
	}

	tasks, total, err := ts.store.ListTasks(ctx, storage.TaskQuery{
		OwnerID:    ownerID,
		Deleted:    q.Deleted,
		SortBy:     q.SortBy,
		Descending: descending,
		Page:       q.Page,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, tryAsAppError(err, op)
	}

	for i, t := range tasks {
		withHistory, err := ts.attachHistory(ctx, t, op)
		if err != nil {
			return nil, err
		}
		tasks[i] = withHistory
	}

	return &TaskPage{
		Tasks:      tasks,
		TotalTasks: total,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}, nil
}

// loadOwnedTask fetches the task and enforces that the actor owns it.
func (ts *TaskService) loadOwnedTask(ctx context.Context, actorID, taskID, op string) (*core.Task, error) {
	t, err := ts.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, tryAsAppError(err, op)
	}
	if t.OwnerID != actorID {
		return nil, core.NewForbiddenError("task "+taskID+" belongs to another user", op)
	}
	return t, nil
}

func (ts *TaskService) attachHistory(ctx context.Context, t *core.Task, op string) (*core.Task, error) {
	entries, err := ts.store.HistoryByTask(ctx, t.ID)
	if err != nil {
		return nil, tryAsAppError(err, op)
	}
	t.History = entries
	return t, nil
}

func buildUpdateEvents(t *core.Task, entry *core.TaskHistoryEntry, now time.Time) ([]wal.Event, error) {
	// History first: replay must never see the patch without the
	// snapshot that precedes it.
	historyEv, err := wal.NewEvent(t.ID, wal.EventHistoryAppended, now,
		wal.HistoryAppendedPayload{Entry: entry})
	if err != nil {
		return nil, err
	}
	patched := t.CloneTask()
	patched.History = nil
	patchEv, err := wal.NewEvent(t.ID, wal.EventTaskPatched, now,
		wal.TaskPatchedPayload{Task: patched})
	if err != nil {
		return nil, err
	}
	return []wal.Event{historyEv, patchEv}, nil
}

// parseDueDate accepts RFC3339 timestamps or bare calendar dates.
// Empty input means no due date.
func parseDueDate(raw, op string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, core.NewValidationError("cannot parse due date "+s, nil, op)
}

func tryAsAppError(err error, op string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := core.AsAppError(err); ok {
		return appErr.WithOper(op)
	}
	return core.NewInternalError("unexpected error", err, op)
}
