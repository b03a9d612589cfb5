package storage_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage"
	"github.com/strings28/task-shelter/internal/storage/wal"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) storage.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewFileStore(
		filepath.Join(dir, "snapshot.json"),
		filepath.Join(dir, "wal.log"),
	)
	require.NoError(t, err)
	require.NoError(t, st.Load(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newBoltStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func eachStore(t *testing.T, run func(t *testing.T, st storage.Store)) {
	t.Run("file", func(t *testing.T) { run(t, newFileStore(t)) })
	t.Run("bolt", func(t *testing.T) { run(t, newBoltStore(t)) })
}

func mustEvent(t *testing.T, recordID string, typ wal.EventType, payload any) wal.Event {
	t.Helper()
	ev, err := wal.NewEvent(recordID, typ, time.Now().UTC(), payload)
	require.NoError(t, err)
	return ev
}

func seedUser(t *testing.T, st storage.Store, id, email string) *core.User {
	t.Helper()
	now := time.Now().UTC()
	u := &core.User{ID: id, Email: email, PasswordHash: "x", CreatedAt: &now}
	ev := mustEvent(t, id, wal.EventUserRegistered, wal.UserRegisteredPayload{User: u})
	require.NoError(t, st.CreateUser(context.Background(), u, ev))
	return u
}

func seedTask(t *testing.T, st storage.Store, id, ownerID, title string, created time.Time) *core.Task {
	t.Helper()
	task := core.NewTask(id, ownerID, &created, title)
	ev := mustEvent(t, id, wal.EventTaskCreated, wal.TaskCreatedPayload{Task: task})
	require.NoError(t, st.CreateTask(context.Background(), task, ev))
	return task
}

func TestStoreUsers(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		seedUser(t, st, "u1", "simon@example.com")

		got, err := st.GetUser(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "simon@example.com", got.Email)

		byEmail, err := st.GetUserByEmail(ctx, "Simon@Example.com")
		require.NoError(t, err, "email lookup should be case-insensitive")
		require.Equal(t, "u1", byEmail.ID)

		_, err = st.GetUser(ctx, "ghost")
		appErr, ok := core.AsAppError(err)
		require.True(t, ok)
		require.Equal(t, core.ErrorCodeNotFound, appErr.Code)
	})
}

func TestStoreEmailConflict(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		seedUser(t, st, "u1", "simon@example.com")

		now := time.Now().UTC()
		dup := &core.User{ID: "u2", Email: "SIMON@example.com", CreatedAt: &now}
		ev := mustEvent(t, "u2", wal.EventUserRegistered, wal.UserRegisteredPayload{User: dup})
		err := st.CreateUser(ctx, dup, ev)
		appErr, ok := core.AsAppError(err)
		require.True(t, ok, "want AppError, got %v", err)
		require.Equal(t, core.ErrorCodeConflict, appErr.Code)
	})
}

func TestStoreUpdateTaskWritesHistoryAtomically(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		seedUser(t, st, "u1", "simon@example.com")
		created := time.Now().UTC().Add(-time.Hour)
		task := seedTask(t, st, "t1", "u1", "before", created)

		now := time.Now().UTC()
		entry := core.SnapshotTask("h1", "u1", task, now)
		patched := task.CloneTask()
		patched.Title = "after"
		patched.UpdatedAt = &now

		historyEv := mustEvent(t, "t1", wal.EventHistoryAppended, wal.HistoryAppendedPayload{Entry: entry})
		patchEv := mustEvent(t, "t1", wal.EventTaskPatched, wal.TaskPatchedPayload{Task: patched})
		require.NoError(t, st.UpdateTask(ctx, patched, entry, historyEv, patchEv))

		got, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, "after", got.Title)

		entries, err := st.HistoryByTask(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "before", entries[0].Title)
	})
}

func TestStoreUpdateTaskNilEntryKeepsHistoryEmpty(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		seedUser(t, st, "u1", "simon@example.com")
		created := time.Now().UTC()
		task := seedTask(t, st, "t1", "u1", "toggle me", created)

		now := time.Now().UTC()
		toggled := task.CloneTask()
		toggled.DeletedAt = &now
		ev := mustEvent(t, "t1", wal.EventDeleteToggled, wal.DeleteToggledPayload{DeletedAt: &now})
		require.NoError(t, st.UpdateTask(ctx, toggled, nil, ev))

		entries, err := st.HistoryByTask(ctx, "t1")
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func TestStoreUpdateMissingTask(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		ghost := core.NewTask("ghost", "u1", &now, "boo")
		err := st.UpdateTask(ctx, ghost, nil)
		appErr, ok := core.AsAppError(err)
		require.True(t, ok, "want AppError, got %v", err)
		require.Equal(t, core.ErrorCodeNotFound, appErr.Code)
	})
}

func TestStoreListTasksFilterSortPaginate(t *testing.T) {
	eachStore(t, func(t *testing.T, st storage.Store) {
		ctx := context.Background()
		seedUser(t, st, "u1", "simon@example.com")
		seedUser(t, st, "u2", "other@example.com")

		base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 15; i++ {
			seedTask(t, st,
				fmt.Sprintf("t%02d", i), "u1",
				fmt.Sprintf("task %02d", i),
				base.Add(time.Duration(i)*time.Minute),
			)
		}
		// another owner's task must never appear
		seedTask(t, st, "foreign", "u2", "not yours", base)
		// one soft-deleted task for u1
		delAt := base.Add(time.Hour)
		deleted := seedTask(t, st, "tdel", "u1", "gone", base)
		toggled := deleted.CloneTask()
		toggled.DeletedAt = &delAt
		require.NoError(t, st.UpdateTask(ctx, toggled, nil))

		q := storage.TaskQuery{
			OwnerID: "u1",
			SortBy:  core.SortByCreatedAt,
			Page:    1, Limit: 10,
		}
		page1, total, err := st.ListTasks(ctx, q)
		require.NoError(t, err)
		require.Equal(t, 15, total)
		require.Len(t, page1, 10)

		q.Page = 2
		page2, total, err := st.ListTasks(ctx, q)
		require.NoError(t, err)
		require.Equal(t, 15, total)
		require.Len(t, page2, 5)

		seen := map[string]bool{}
		for _, tk := range append(page1, page2...) {
			require.True(t, tk.Live(), "live view returned deleted task %q", tk.ID)
			require.Equal(t, "u1", tk.OwnerID)
			require.False(t, seen[tk.ID], "duplicate task %q across pages", tk.ID)
			seen[tk.ID] = true
		}
		require.Len(t, seen, 15)

		// page past the end: empty slice, total intact
		q.Page = 3
		page3, total, err := st.ListTasks(ctx, q)
		require.NoError(t, err)
		require.Equal(t, 15, total)
		require.Empty(t, page3)

		// deleted view holds exactly the toggled task
		q.Page = 1
		q.Deleted = true
		delPage, delTotal, err := st.ListTasks(ctx, q)
		require.NoError(t, err)
		require.Equal(t, 1, delTotal)
		require.Len(t, delPage, 1)
		require.Equal(t, "tdel", delPage[0].ID)
		require.NotNil(t, delPage[0].DeletedAt)
	})
}

func TestFileStoreReplayAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	walPath := filepath.Join(dir, "wal.log")

	st, err := storage.NewFileStore(snapPath, walPath)
	require.NoError(t, err)
	require.NoError(t, st.Load(ctx))

	seedUser(t, st, "u1", "simon@example.com")
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task := seedTask(t, st, "t1", "u1", "before", created)

	now := created.Add(time.Minute)
	entry := core.SnapshotTask("h1", "u1", task, now)
	patched := task.CloneTask()
	patched.Title = "after"
	patched.UpdatedAt = &now
	historyEv := mustEvent(t, "t1", wal.EventHistoryAppended, wal.HistoryAppendedPayload{Entry: entry})
	patchEv := mustEvent(t, "t1", wal.EventTaskPatched, wal.TaskPatchedPayload{Task: patched})
	require.NoError(t, st.UpdateTask(ctx, patched, entry, historyEv, patchEv))

	delAt := now.Add(time.Minute)
	toggled := patched.CloneTask()
	toggled.DeletedAt = &delAt
	toggleEv := mustEvent(t, "t1", wal.EventDeleteToggled, wal.DeleteToggledPayload{DeletedAt: &delAt})
	require.NoError(t, st.UpdateTask(ctx, toggled, nil, toggleEv))

	require.NoError(t, st.Close())

	// reopen: snapshot is absent, everything comes from the WAL
	st2, err := storage.NewFileStore(snapPath, walPath)
	require.NoError(t, err)
	defer func() { _ = st2.Close() }()
	require.NoError(t, st2.Load(ctx))

	got, err := st2.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "after", got.Title)
	require.NotNil(t, got.DeletedAt)

	entries, err := st2.HistoryByTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "before", entries[0].Title)

	u, err := st2.GetUserByEmail(ctx, "simon@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
}

func TestFileStoreSnapshotRotatesWAL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	walPath := filepath.Join(dir, "wal.log")

	st, err := storage.NewFileStore(snapPath, walPath)
	require.NoError(t, err)
	require.NoError(t, st.Load(ctx))

	seedUser(t, st, "u1", "simon@example.com")
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	seedTask(t, st, "t1", "u1", "persist me", created)

	require.NoError(t, st.FlushSnapshot(ctx))
	require.NoError(t, st.Close())

	// state must survive from the snapshot alone
	st2, err := storage.NewFileStore(snapPath, walPath)
	require.NoError(t, err)
	defer func() { _ = st2.Close() }()
	require.NoError(t, st2.Load(ctx))

	got, err := st2.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "persist me", got.Title)
}
