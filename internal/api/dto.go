package api

import (
	"time"

	"github.com/strings28/task-shelter/internal/core"
)

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

type AuthResponse struct {
	User        *UserResponse `json:"user"`
	AccessToken string        `json:"access_token"`
}

// UserResponse deliberately has no credential field.
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Firstname string     `json:"firstname,omitempty"`
	Lastname  string     `json:"lastname,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func NewUserResponse(u *core.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		CreatedAt: copyTime(u.CreatedAt),
	}
}

// CreateTaskRequest mirrors the wire body. UserID is accepted for
// compatibility but the owner is always the authenticated user.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate"`
	UserID      string `json:"userId"`
}

// UpdateTaskRequest is a partial patch; absent fields stay unchanged.
// DeletedAt carries boolean intent: true soft-deletes the task as
// part of the patch.
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	DueDate     *string `json:"dueDate"`
	DeletedAt   *bool   `json:"deletedAt"`
}

type HistoryEntryResponse struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TaskResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`

	History []*HistoryEntryResponse `json:"task_history,omitempty"`
}

type TaskListResponse struct {
	Tasks      []*TaskResponse `json:"tasks"`
	TotalTasks int             `json:"totalTasks"`
	TotalPages int             `json:"totalPages"`
}

func NewTaskResponse(task *core.Task) *TaskResponse {
	if task == nil {
		return nil
	}

	resp := &TaskResponse{
		ID:          task.ID,
		UserID:      task.OwnerID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		DueDate:     copyTime(task.DueDate),
		DeletedAt:   copyTime(task.DeletedAt),
		CreatedAt:   copyTime(task.CreatedAt),
		UpdatedAt:   copyTime(task.UpdatedAt),
	}
	if len(task.History) > 0 {
		resp.History = make([]*HistoryEntryResponse, 0, len(task.History))
		for _, e := range task.History {
			if e == nil {
				continue
			}
			resp.History = append(resp.History, &HistoryEntryResponse{
				ID:          e.ID,
				TaskID:      e.TaskID,
				UserID:      e.ActorID,
				Title:       e.Title,
				Description: e.Description,
				Status:      string(e.Status),
				DueDate:     copyTime(e.DueDate),
				DeletedAt:   copyTime(e.DeletedAt),
				CreatedAt:   e.CreatedAt,
			})
		}
	}

	return resp
}

func NewTaskListResponse(tasks []*core.Task, totalTasks, totalPages int) *TaskListResponse {
	resp := &TaskListResponse{
		Tasks:      make([]*TaskResponse, 0, len(tasks)),
		TotalTasks: totalTasks,
		TotalPages: totalPages,
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		resp.Tasks = append(resp.Tasks, NewTaskResponse(t))
	}
	return resp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	nt := *t
	return &nt
}
