package services

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newFakeUsers(users ...types.User) *fakeUsers {
	f := &fakeUsers{users: map[uuid.UUID]types.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Username == username })
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return f.find(func(u types.User) bool { return strings.EqualFold(u.Email, email) })
}

func (f *fakeUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) SetActive(ctx context.Context, username string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.Username == username {
			u.Active = active
			f.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeUsers) find(match func(types.User) bool) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

type fakeTasks struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]types.Task
	lastSort types.TaskSort
	lastOff  int
	lastLim  int
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: map[uuid.UUID]types.Task{}}
}

func (f *fakeTasks) List(ctx context.Context, offset, limit int, sort types.TaskSort) ([]types.Task, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSort, f.lastOff, f.lastLim = sort, offset, limit
	live := make([]types.Task, 0)
	for _, t := range f.tasks {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	if offset >= len(live) {
		return []types.Task{}, len(live), nil
	}
	end := min(offset+limit, len(live))
	return live[offset:end], len(live), nil
}

func (f *fakeTasks) Get(ctx context.Context, id uuid.UUID) (types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Deleted {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeTasks) Create(ctx context.Context, task types.Task) (types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeTasks) Update(ctx context.Context, task types.Task) (types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.tasks[task.ID]
	if !ok || cur.Deleted {
		return types.Task{}, store.ErrNotFound
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeTasks) SoftDelete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.Deleted {
		return store.ErrNotFound
	}
	t.Deleted = true
	f.tasks[id] = t
	return nil
}

type fakeAttachments struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]types.Attachment
	failCreate error
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{rows: map[uuid.UUID]types.Attachment{}}
}

func (f *fakeAttachments) Create(ctx context.Context, att types.Attachment) (types.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return types.Attachment{}, f.failCreate
	}
	att.ID = uuid.New()
	f.rows[att.ID] = att
	return att, nil
}

func (f *fakeAttachments) Get(ctx context.Context, id uuid.UUID) (types.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	att, ok := f.rows[id]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	return att, nil
}

func (f *fakeAttachments) ListByTask(ctx context.Context, taskID uuid.UUID) ([]types.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Attachment, 0)
	for _, att := range f.rows {
		if att.TaskID != nil && *att.TaskID == taskID {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (f *fakeAttachments) SetTask(ctx context.Context, id uuid.UUID, taskID *uuid.UUID) (types.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	att, ok := f.rows[id]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	att.TaskID = taskID
	f.rows[id] = att
	return att, nil
}

func (f *fakeAttachments) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

// flakyBackend is a local backend whose deletes can be made to fail.
type flakyBackend struct {
	*storage.LocalClient
	failDelete error
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.LocalClient.Delete(ctx, key)
}

func newFlakyStorage(t *testing.T) (*storage.Storage, *flakyBackend) {
	t.Helper()
	local, err := storage.NewLocalClient(t.TempDir())
	require.NoError(t, err)
	backend := &flakyBackend{LocalClient: local}
	return storage.NewStorage(backend), backend
}

type recordingPublisher struct {
	mu    sync.Mutex
	blobs []mq.OrphanedBlob
	err   error
}

func (r *recordingPublisher) PublishOrphan(ctx context.Context, blob mq.OrphanedBlob) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.blobs = append(r.blobs, blob)
	return "id", nil
}

func (r *recordingPublisher) published() []mq.OrphanedBlob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mq.OrphanedBlob(nil), r.blobs...)
}

var errDiskGone = errors.New("disk gone")

func filepathEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
