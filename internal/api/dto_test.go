package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/stretchr/testify/require"
)

func TestNewTaskResponseCarriesHistory(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task := core.NewTask("t1", "simon", &now, "before")
	entry := core.SnapshotTask("h1", "actor", task, now.Add(time.Minute))
	task.Title = "after"
	task.History = []*core.TaskHistoryEntry{entry}

	resp := NewTaskResponse(task)
	require.NotNil(t, resp)
	require.Equal(t, "after", resp.Title)
	require.Equal(t, "simon", resp.UserID)
	require.Len(t, resp.History, 1)
	require.Equal(t, "before", resp.History[0].Title)
	require.Equal(t, "actor", resp.History[0].UserID)
}

func TestNewTaskResponseOmitsEmptyHistory(t *testing.T) {
	now := time.Now().UTC()
	task := core.NewTask("t1", "simon", &now, "t")

	raw, err := json.Marshal(NewTaskResponse(task))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "task_history")
}

func TestNewUserResponseHasNoCredential(t *testing.T) {
	now := time.Now().UTC()
	u := &core.User{
		ID: "u1", Email: "simon@example.com",
		PasswordHash: "secret-hash", CreatedAt: &now,
	}

	raw, err := json.Marshal(NewUserResponse(u))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret-hash")
	require.NotContains(t, string(raw), "password")
}

func TestUpdateTaskRequestPartialDecode(t *testing.T) {
	req := UpdateTaskRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"DONE"}`), &req))
	require.NotNil(t, req.Status)
	require.Equal(t, "DONE", *req.Status)
	require.Nil(t, req.Title)
	require.Nil(t, req.DeletedAt)
}
