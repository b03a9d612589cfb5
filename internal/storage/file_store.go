package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage/snapshot"
	"github.com/strings28/task-shelter/internal/storage/wal"
)

// FileStore keeps all records in memory, made durable through an
// append-only WAL plus periodic snapshots. State is rebuilt on Load
// by reading the latest snapshot and replaying subsequent WAL events.
type FileStore struct {
	users   map[string]*core.User
	emails  map[string]string // lowercased email -> user id
	tasks   map[string]*core.Task
	history map[string][]*core.TaskHistoryEntry // task id -> entries

	snapshotPath string
	walPath      string

	log wal.AppendOnlyLog
	mu  sync.RWMutex
}

func NewFileStore(snapshotPath, walPath string) (*FileStore, error) {
	log, err := wal.NewFileLog(walPath)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		users:        make(map[string]*core.User),
		emails:       make(map[string]string),
		tasks:        make(map[string]*core.Task),
		history:      make(map[string][]*core.TaskHistoryEntry),
		snapshotPath: snapshotPath,
		walPath:      walPath,
		log:          log,
	}, nil
}

// Load rebuilds in-memory state from the snapshot and the WAL.
func (st *FileStore) Load(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	users := make(map[string]*core.User)
	emails := make(map[string]string)
	tasks := make(map[string]*core.Task)
	history := make(map[string][]*core.TaskHistoryEntry)

	ss, err := snapshot.Read(ctx, st.snapshotPath)
	if err != nil {
		return err
	}
	if ss != nil {
		for _, u := range ss.Users {
			users[u.ID] = u.CloneUser()
			emails[strings.ToLower(u.Email)] = u.ID
		}
		for _, t := range ss.Tasks {
			tasks[t.ID] = t.CloneTask()
		}
		for _, e := range ss.History {
			history[e.TaskID] = append(history[e.TaskID], e.CloneEntry())
		}
	}

	evs, err := wal.ReadAll(ctx, st.walPath)
	if err != nil {
		return err
	}
	if err := applyEvents(users, emails, tasks, history, evs); err != nil {
		return err
	}

	st.users = users
	st.emails = emails
	st.tasks = tasks
	st.history = history
	return nil
}

// Close closes wal log.
func (st *FileStore) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.log == nil {
		return nil
	}
	err := st.log.Close()
	st.log = nil
	return err
}

func (st *FileStore) CreateUser(ctx context.Context, user *core.User, ev wal.Event) error {
	const op = "storage.FileStore.CreateUser"
	if user == nil {
		return errors.New("store: required user")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := st.emails[key]; ok {
		return core.NewEmailConflictError(user.Email, op)
	}
	if _, ok := st.users[user.ID]; ok {
		return errors.New("store: user " + user.ID + " already exists")
	}

	if err := st.flushAppend(ctx, ev); err != nil {
		return err
	}

	st.users[user.ID] = user.CloneUser()
	st.emails[key] = user.ID
	return nil
}

func (st *FileStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	const op = "storage.FileStore.GetUser"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.users[id]
	if !ok {
		return nil, core.NewUserNotFoundError(id, op)
	}
	return u.CloneUser(), nil
}

func (st *FileStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	const op = "storage.FileStore.GetUserByEmail"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.emails[strings.ToLower(email)]
	if !ok {
		return nil, core.NewUserNotFoundError(email, op)
	}
	return st.users[id].CloneUser(), nil
}

func (st *FileStore) CreateTask(ctx context.Context, task *core.Task, ev wal.Event) error {
	if task == nil {
		return errors.New("store: required task")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.tasks[task.ID]; ok {
		return errors.New("store: task " + task.ID + " already exists")
	}

	if err := st.flushAppend(ctx, ev); err != nil {
		return err
	}

	st.tasks[task.ID] = task.CloneTask()
	return nil
}

func (st *FileStore) GetTask(ctx context.Context, id string) (*core.Task, error) {
	const op = "storage.FileStore.GetTask"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	t, ok := st.tasks[id]
	if !ok {
		return nil, core.NewTaskNotFoundError(id, op)
	}
	return t.CloneTask(), nil
}

// UpdateTask appends the history entry (when present) and the task
// patch to the WAL in that order within one flushed batch, then
// updates memory. The flush makes both durable together.
func (st *FileStore) UpdateTask(ctx context.Context, task *core.Task, entry *core.TaskHistoryEntry, evs ...wal.Event) error {
	const op = "storage.FileStore.UpdateTask"
	if task == nil {
		return errors.New("store: required task")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.tasks[task.ID]; !ok {
		return core.NewTaskNotFoundError(task.ID, op)
	}

	if len(evs) > 0 {
		if err := st.flushAppend(ctx, evs...); err != nil {
			return err
		}
	}

	if entry != nil {
		st.history[task.ID] = append(st.history[task.ID], entry.CloneEntry())
	}
	t := task.CloneTask()
	t.History = nil
	st.tasks[task.ID] = t
	return nil
}

func (st *FileStore) HistoryByTask(ctx context.Context, taskID string) ([]*core.TaskHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st.mu.RLock()
	res := core.CloneHistory(st.history[taskID])
	st.mu.RUnlock()

	core.SortHistory(res)
	return res, nil
}

func (st *FileStore) ListTasks(ctx context.Context, q TaskQuery) ([]*core.Task, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	st.mu.RLock()
	matched := make([]*core.Task, 0, len(st.tasks))
	for _, t := range st.tasks {
		if matchesQuery(t, q) {
			matched = append(matched, t.CloneTask())
		}
	}
	st.mu.RUnlock()

	core.SortTasksBy(matched, q.SortBy, q.Descending)
	return pageSlice(matched, q), len(matched), nil
}

// FlushSnapshot persists current state as a new snapshot, then
// archives and resets the WAL.
func (st *FileStore) FlushSnapshot(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.log == nil {
		return errors.New("store: wal log not initialized")
	}

	ss := &snapshot.Snapshot{
		CreatedAt: time.Now().UTC(),
		Version:   snapshot.CurrentVersion,
	}
	for _, u := range st.users {
		ss.Users = append(ss.Users, u.CloneUser())
	}
	for _, t := range st.tasks {
		ss.Tasks = append(ss.Tasks, t.CloneTask())
	}
	for _, entries := range st.history {
		ss.History = append(ss.History, core.CloneHistory(entries)...)
	}
	core.SortTasksBy(ss.Tasks, core.SortByCreatedAt, false)

	if err := st.log.Flush(ctx); err != nil {
		return err
	}

	if err := snapshot.Write(ctx, st.snapshotPath, ss); err != nil {
		return err
	}

	return st.backupAndResetLog()
}

func (st *FileStore) flushAppend(ctx context.Context, evs ...wal.Event) error {
	if st.log == nil {
		return errors.New("store: wal log not initialized")
	}
	if err := st.log.Append(ctx, evs...); err != nil {
		return err
	}
	return st.log.Flush(ctx)
}

func (st *FileStore) backupAndResetLog() error {
	if st.log == nil {
		return errors.New("store: wal log not initialized")
	}
	if err := st.log.Close(); err != nil {
		return fmt.Errorf("store: close wal before rotate: %w", err)
	}

	st.log = nil

	if err := os.MkdirAll(
		filepath.Join(filepath.Dir(st.walPath), "old"),
		0o755,
	); err != nil {
		return fmt.Errorf("store: cant create old wal dir: %w", err)
	}

	oldPath := filepath.Join(
		filepath.Dir(st.walPath),
		"old",
		fmt.Sprintf(
			"wal-%s.log",
			time.Now().UTC().Format("20060102T150405Z"),
		),
	)
	if err := os.Rename(st.walPath, oldPath); err != nil {
		return fmt.Errorf("store: cant rename wal to old: %w", err)
	}

	if nl, err := wal.NewFileLog(st.walPath); err != nil {
		return fmt.Errorf("store: cant create new wal log: %w", err)
	} else {
		st.log = nl
		return nil
	}
}

func applyEvents(
	users map[string]*core.User,
	emails map[string]string,
	tasks map[string]*core.Task,
	history map[string][]*core.TaskHistoryEntry,
	evs []wal.Event,
) error {
	for _, ev := range evs {
		switch ev.Type {
		case wal.EventUserRegistered:
			p := wal.UserRegisteredPayload{}
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("store: decoding user_registered: %w", err)
			}
			if p.User == nil {
				continue
			}
			users[p.User.ID] = p.User.CloneUser()
			emails[strings.ToLower(p.User.Email)] = p.User.ID
		case wal.EventTaskCreated:
			p := wal.TaskCreatedPayload{}
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("store: decoding task_created: %w", err)
			}
			if p.Task == nil {
				continue
			}
			tasks[p.Task.ID] = p.Task.CloneTask()
		case wal.EventHistoryAppended:
			p := wal.HistoryAppendedPayload{}
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("store: decoding history_appended: %w", err)
			}
			if p.Entry == nil {
				continue
			}
			history[p.Entry.TaskID] = append(history[p.Entry.TaskID], p.Entry.CloneEntry())
		case wal.EventTaskPatched:
			p := wal.TaskPatchedPayload{}
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("store: decoding task_patched: %w", err)
			}
			if p.Task == nil {
				continue
			}
			if _, ok := tasks[p.Task.ID]; ok {
				tasks[p.Task.ID] = p.Task.CloneTask()
			}
		case wal.EventDeleteToggled:
			p := wal.DeleteToggledPayload{}
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("store: decoding delete_toggled: %w", err)
			}
			if t := tasks[ev.RecordID]; t != nil {
				t.DeletedAt = p.DeletedAt
				upd := ev.CreatedAt
				t.UpdatedAt = &upd
			}
		default:
			return fmt.Errorf("store: got uncaught event %v", ev.Type)
		}
	}
	return nil
}
