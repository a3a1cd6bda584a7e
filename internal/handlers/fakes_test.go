package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

type memUsers struct {
	users []types.User
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return m.find(func(u types.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Username == username })
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Email == email })
}

func (m *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	m.users = append(m.users, user)
	return user, nil
}

func (m *memUsers) SetActive(ctx context.Context, username string, active bool) error {
	return nil
}

func (m *memUsers) find(match func(types.User) bool) (types.User, error) {
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

type memTasks struct {
	mu    sync.Mutex
	order []uuid.UUID
	tasks map[uuid.UUID]types.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: map[uuid.UUID]types.Task{}}
}

func (m *memTasks) List(ctx context.Context, offset, limit int, sort types.TaskSort) ([]types.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := make([]types.Task, 0)
	for _, id := range m.order {
		if t := m.tasks[id]; !t.Deleted {
			live = append(live, t)
		}
	}
	if offset >= len(live) {
		return []types.Task{}, len(live), nil
	}
	return live[offset:min(offset+limit, len(live))], len(live), nil
}

func (m *memTasks) Get(ctx context.Context, id uuid.UUID) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Deleted {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTasks) Create(ctx context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = uuid.New()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	return task, nil
}

func (m *memTasks) Update(ctx context.Context, task types.Task) (types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.tasks[task.ID]; !ok || cur.Deleted {
		return types.Task{}, store.ErrNotFound
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTasks) SoftDelete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Deleted {
		return store.ErrNotFound
	}
	t.Deleted = true
	m.tasks[id] = t
	return nil
}

type memAttachments struct {
	mu   sync.Mutex
	rows map[uuid.UUID]types.Attachment
}

func newMemAttachments() *memAttachments {
	return &memAttachments{rows: map[uuid.UUID]types.Attachment{}}
}

func (m *memAttachments) Create(ctx context.Context, att types.Attachment) (types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att.ID = uuid.New()
	m.rows[att.ID] = att
	return att, nil
}

func (m *memAttachments) Get(ctx context.Context, id uuid.UUID) (types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.rows[id]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	return att, nil
}

func (m *memAttachments) ListByTask(ctx context.Context, taskID uuid.UUID) ([]types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Attachment, 0)
	for _, att := range m.rows {
		if att.TaskID != nil && *att.TaskID == taskID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (m *memAttachments) SetTask(ctx context.Context, id uuid.UUID, taskID *uuid.UUID) (types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.rows[id]
	if !ok {
		return types.Attachment{}, store.ErrNotFound
	}
	att.TaskID = taskID
	m.rows[id] = att
	return att, nil
}

func (m *memAttachments) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}
