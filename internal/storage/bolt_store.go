package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage/wal"
	bolt "go.etcd.io/bbolt"
)

// BoltStore persists records in bbolt. Atomicity of the
// history-then-task pair in UpdateTask comes from a single bolt
// update transaction, so the WAL events passed in are ignored.
type BoltStore struct {
	db *bolt.DB
}

const (
	boltUsersBucket   = "ts-users"
	boltEmailsBucket  = "ts-user-emails"
	boltTasksBucket   = "ts-tasks"
	boltHistoryBucket = "ts-history"
)

func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("storage: required bolt path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600,
		&bolt.Options{Timeout: time.Second},
	)
	if err != nil {
		return nil, fmt.Errorf("storage: opening bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			boltUsersBucket, boltEmailsBucket,
			boltTasksBucket, boltHistoryBucket,
		} {
			if _, berr := tx.CreateBucketIfNotExists([]byte(name)); berr != nil {
				return berr
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: cant init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) CreateUser(ctx context.Context, user *core.User, _ wal.Event) error {
	const op = "storage.BoltStore.CreateUser"
	if s.db == nil {
		return errors.New("storage: bolt not init")
	} else if user == nil {
		return errors.New("storage: required user")
	} else if err := ctx.Err(); err != nil {
		return err
	}

	p, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("storage: cant marshal user: %w", err)
	}
	emailKey := []byte(strings.ToLower(user.Email))
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket([]byte(boltEmailsBucket))
		users := tx.Bucket([]byte(boltUsersBucket))
		if emails == nil || users == nil {
			return errors.New("storage: bucket miss")
		}
		if emails.Get(emailKey) != nil {
			return core.NewEmailConflictError(user.Email, op)
		}
		if users.Get([]byte(user.ID)) != nil {
			return fmt.Errorf("storage: user %s already here", user.ID)
		}
		if err := emails.Put(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return users.Put([]byte(user.ID), p)
	})
}

func (s *BoltStore) GetUser(ctx context.Context, id string) (*core.User, error) {
	const op = "storage.BoltStore.GetUser"
	if s.db == nil {
		return nil, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *core.User
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltUsersBucket))
		if bucket == nil {
			return errors.New("storage: bucket miss")
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return nil
		}
		res := &core.User{}
		if err := json.Unmarshal(value, res); err != nil {
			return fmt.Errorf("storage: cant unmarshal user: %w", err)
		}
		user = res
		return nil
	}); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.NewUserNotFoundError(id, op)
	}
	return user.CloneUser(), nil
}

func (s *BoltStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	const op = "storage.BoltStore.GetUserByEmail"
	if s.db == nil {
		return nil, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var id []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltEmailsBucket))
		if bucket == nil {
			return errors.New("storage: bucket miss")
		}
		if v := bucket.Get([]byte(strings.ToLower(email))); v != nil {
			id = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, core.NewUserNotFoundError(email, op)
	}
	return s.GetUser(ctx, string(id))
}

func (s *BoltStore) CreateTask(ctx context.Context, task *core.Task, _ wal.Event) error {
	if s.db == nil {
		return errors.New("storage: bolt not init")
	} else if task == nil {
		return errors.New("storage: required task")
	} else if err := ctx.Err(); err != nil {
		return err
	}

	p, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("storage: cant marshal task: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltTasksBucket))
		if b == nil {
			return errors.New("storage: bucket miss")
		}
		if b.Get([]byte(task.ID)) != nil {
			return fmt.Errorf("storage: task %s already here", task.ID)
		}
		return b.Put([]byte(task.ID), p)
	})
}

func (s *BoltStore) GetTask(ctx context.Context, id string) (*core.Task, error) {
	const op = "storage.BoltStore.GetTask"
	if s.db == nil {
		return nil, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *core.Task
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("storage: bucket miss")
		}
		value := bucket.Get([]byte(id))
		if value == nil {
			return nil
		}
		res := &core.Task{}
		if err := json.Unmarshal(value, res); err != nil {
			return fmt.Errorf("storage: cant unmarshal task: %w", err)
		}
		task = res
		return nil
	}); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, core.NewTaskNotFoundError(id, op)
	}
	return task.CloneTask(), nil
}

// UpdateTask writes the history entry and the patched task in one
// bolt transaction: both commit or neither does.
func (s *BoltStore) UpdateTask(ctx context.Context, task *core.Task, entry *core.TaskHistoryEntry, _ ...wal.Event) error {
	const op = "storage.BoltStore.UpdateTask"
	if s.db == nil {
		return errors.New("storage: bolt not init")
	} else if task == nil {
		return errors.New("storage: required task")
	} else if err := ctx.Err(); err != nil {
		return err
	}

	t := task.CloneTask()
	t.History = nil
	p, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("storage: cant marshal task: %w", err)
	}
	var ep []byte
	if entry != nil {
		if ep, err = json.Marshal(entry); err != nil {
			return fmt.Errorf("storage: cant marshal history entry: %w", err)
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket([]byte(boltTasksBucket))
		history := tx.Bucket([]byte(boltHistoryBucket))
		if tasks == nil || history == nil {
			return errors.New("storage: bucket miss")
		}
		if tasks.Get([]byte(task.ID)) == nil {
			return core.NewTaskNotFoundError(task.ID, op)
		}
		if entry != nil {
			if err := history.Put(historyKey(entry.TaskID, entry.ID), ep); err != nil {
				return err
			}
		}
		return tasks.Put([]byte(task.ID), p)
	})
}

func (s *BoltStore) HistoryByTask(ctx context.Context, taskID string) ([]*core.TaskHistoryEntry, error) {
	if s.db == nil {
		return nil, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := historyKey(taskID, "")
	res := make([]*core.TaskHistoryEntry, 0)
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltHistoryBucket))
		if bucket == nil {
			return errors.New("storage: bucket miss")
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			e := &core.TaskHistoryEntry{}
			if err := json.Unmarshal(v, e); err != nil {
				return fmt.Errorf("storage: cant unmarshal history entry: %w", err)
			}
			res = append(res, e)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	core.SortHistory(res)
	return res, nil
}

func (s *BoltStore) ListTasks(ctx context.Context, q TaskQuery) ([]*core.Task, int, error) {
	if s.db == nil {
		return nil, 0, errors.New("storage: bolt not init")
	} else if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	matched := make([]*core.Task, 0)
	if err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltTasksBucket))
		if bucket == nil {
			return errors.New("storage: bucket miss")
		}
		return bucket.ForEach(func(_, v []byte) error {
			t := &core.Task{}
			if err := json.Unmarshal(v, t); err != nil {
				return fmt.Errorf("storage: cant unmarshal task: %w", err)
			}
			if matchesQuery(t, q) {
				matched = append(matched, t)
			}
			return nil
		})
	}); err != nil {
		return nil, 0, err
	}

	core.SortTasksBy(matched, q.SortBy, q.Descending)
	return pageSlice(matched, q), len(matched), nil
}

// FlushSnapshot is a no-op beyond an fsync; bolt is durable per
// transaction.
func (s *BoltStore) FlushSnapshot(ctx context.Context) error {
	if s.db == nil {
		return errors.New("storage: bolt not init")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Sync()
}

func historyKey(taskID, entryID string) []byte {
	return []byte(taskID + "/" + entryID)
}
