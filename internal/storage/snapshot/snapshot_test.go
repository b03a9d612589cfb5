package snapshot_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage/snapshot"
	"github.com/stretchr/testify/require"
)

func TestReadMissSnapshot(t *testing.T) {
	t.Parallel()
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "snapshot.json")
	)
	// if file doesnt exist, should return nil,nil
	ss, err := snapshot.Read(ctx, path)
	require.NoErrorf(t, err, "snapshot read: %v", err)
	require.Nilf(t, ss, "expected nil snapshot, got %#v", ss)
}

func TestWriteReadSnapshot(t *testing.T) {
	t.Parallel()
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "snapshot.json")
	)
	now := time.Now().UTC()
	user := &core.User{ID: "simon", Email: "simon@example.com", CreatedAt: &now}
	task := core.NewTask("simon-task", user.ID, &now, "water the plants")
	entry := core.SnapshotTask("h1", user.ID, task, now.Add(time.Minute))

	ss := &snapshot.Snapshot{
		CreatedAt: now,
		Version:   snapshot.CurrentVersion,
		Users:     []*core.User{user},
		Tasks:     []*core.Task{task},
		History:   []*core.TaskHistoryEntry{entry},
	}

	err := snapshot.Write(ctx, path, ss)
	require.NoErrorf(t, err, "snapshot write: %v", err)

	got, err := snapshot.Read(ctx, path)
	require.NoErrorf(t, err, "snapshot read: %v", err)
	require.NotNilf(t, got, "got nil snapshot")
	require.Equalf(t, ss.Version, got.Version,
		"version not equal: got %d, want %d", got.Version, ss.Version,
	)
	require.Truef(t, len(got.Tasks) == 1 && got.Tasks[0].ID == task.ID,
		"tasks not equal: got %#v", got.Tasks,
	)
	require.Truef(t, len(got.Users) == 1 && got.Users[0].ID == user.ID,
		"users not equal: got %#v", got.Users,
	)
	require.Truef(t, len(got.History) == 1 && got.History[0].ID == entry.ID,
		"history not equal: got %#v", got.History,
	)
}
