package core

import (
	"sort"
	"strings"
	"time"
)

// Task is a single unit of work owned by exactly one user.
// OwnerID is set at creation and never reassigned.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	// DeletedAt is nil while the task is live and holds the soft-delete
	// moment otherwise. Flipped by the delete toggle, never by a patch.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`

	// History carries the audit snapshots when the task is read or
	// listed. It is view data, not part of the persisted task record.
	History []*TaskHistoryEntry `json:"task_history,omitempty"`
}

func NewTask(id, ownerID string, now *time.Time, title string) *Task {
	return &Task{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		Status:    TaskStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Live reports whether the task is not soft-deleted.
func (t *Task) Live() bool {
	return t.DeletedAt == nil
}

func (t *Task) CloneTask() *Task {
	if t == nil {
		return nil
	}

	ct := *t
	ct.DueDate = copyTime(t.DueDate)
	ct.DeletedAt = copyTime(t.DeletedAt)
	ct.CreatedAt = copyTime(t.CreatedAt)
	ct.UpdatedAt = copyTime(t.UpdatedAt)
	if t.History != nil {
		ct.History = CloneHistory(t.History)
	}
	return &ct
}

func CloneTasks(tasks []*Task) []*Task {
	if len(tasks) == 0 {
		return nil
	}

	res := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, t.CloneTask())
	}
	return res
}

// Sortable task fields. These are the wire names the list API accepts.
const (
	SortByTitle       = "title"
	SortByDescription = "description"
	SortByStatus      = "status"
	SortByDueDate     = "dueDate"
	SortByCreatedAt   = "createdAt"
	SortByUpdatedAt   = "updatedAt"
)

// IsSortableField reports whether field is a legal list sort key.
// Unknown names must be rejected before a store query is built.
func IsSortableField(field string) bool {
	switch field {
	case SortByTitle, SortByDescription, SortByStatus,
		SortByDueDate, SortByCreatedAt, SortByUpdatedAt:
		return true
	}
	return false
}

// SortTasksBy sorts tasks in-place by the given field. Ties and nil
// time fields fall back to ID so the order is total and stable across
// pages. field must already be validated with IsSortableField.
func SortTasksBy(tasks []*Task, field string, descending bool) {
	sort.Slice(tasks, func(i, j int) bool {
		less, eq := compareTasks(tasks[i], tasks[j], field)
		if eq {
			return tasks[i].ID < tasks[j].ID
		}
		if descending {
			return !less
		}
		return less
	})
}

func compareTasks(a, b *Task, field string) (less, eq bool) {
	switch field {
	case SortByTitle:
		return compareStrings(a.Title, b.Title)
	case SortByDescription:
		return compareStrings(a.Description, b.Description)
	case SortByStatus:
		return compareStrings(string(a.Status), string(b.Status))
	case SortByDueDate:
		return compareTimes(a.DueDate, b.DueDate)
	case SortByUpdatedAt:
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareStrings(s1, s2 string) (less, eq bool) {
	c := strings.Compare(s1, s2)
	return c < 0, c == 0
}

func compareTimes(t1, t2 *time.Time) (less, eq bool) {
	switch {
	case t1 == nil && t2 == nil:
		return false, true
	case t1 == nil:
		return false, false
	case t2 == nil:
		return true, false
	case t1.Equal(*t2):
		return false, true
	default:
		return t1.Before(*t2), false
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	nt := *t
	return &nt
}
