package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxTaskName     = 255
)

// DefaultTaskSort orders newest tasks first.
var DefaultTaskSort = types.TaskSort{Field: "createdAt", Desc: true}

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	List(ctx context.Context, offset, limit int, sort types.TaskSort) ([]types.Task, int, error)
	Get(ctx context.Context, id uuid.UUID) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// TaskInput is the payload for a new task.
type TaskInput struct {
	Name        string
	Description string
	DueDate     *time.Time
}

// TaskPatch carries optional updates; nil fields are left untouched.
type TaskPatch struct {
	Name        *string
	Description *string
	Completed   *bool
	DueDate     *time.Time
}

// TaskService encapsulates task use-cases.
type TaskService struct {
	repo        TaskRepository
	attachments AttachmentRepository
	now         func() time.Time
}

func NewTaskService(repo TaskRepository, attachments AttachmentRepository) *TaskService {
	return &TaskService{repo: repo, attachments: attachments, now: time.Now}
}

// List returns one zero-based page of live tasks. size is clamped to
// [1, MaxPageSize].
func (s *TaskService) List(ctx context.Context, page, size int, sort types.TaskSort) (types.TaskPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if sort.Field == "" {
		sort = DefaultTaskSort
	}

	items, total, err := s.repo.List(ctx, page*size, size, sort)
	if err != nil {
		return types.TaskPage{}, err
	}
	return types.TaskPage{Items: items, Page: page, Size: size, Total: total}, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (types.Task, error) {
	return s.repo.Get(ctx, id)
}

// Detail returns the task with its attachments and due-date helpers.
func (s *TaskService) Detail(ctx context.Context, id uuid.UUID) (types.TaskDetail, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.TaskDetail{}, err
	}
	attachments, err := s.attachments.ListByTask(ctx, id)
	if err != nil {
		return types.TaskDetail{}, fmt.Errorf("list attachments: %w", err)
	}

	detail := types.TaskDetail{Task: task, Attachments: attachments}
	if task.DueDate != nil {
		now := s.now()
		days := int64(task.DueDate.Sub(now) / (24 * time.Hour))
		detail.DaysUntilDue = &days
		detail.Overdue = !task.Completed && now.After(*task.DueDate)
	}
	return detail, nil
}

func (s *TaskService) Create(ctx context.Context, in TaskInput) (types.Task, error) {
	name, err := validTaskName(in.Name)
	if err != nil {
		return types.Task{}, err
	}
	return s.repo.Create(ctx, types.Task{
		Name:        name,
		Description: in.Description,
		DueDate:     in.DueDate,
	})
}

// Update applies the non-nil fields of patch.
func (s *TaskService) Update(ctx context.Context, id uuid.UUID, patch TaskPatch) (types.Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Task{}, err
	}
	if patch.Name != nil {
		name, err := validTaskName(*patch.Name)
		if err != nil {
			return types.Task{}, err
		}
		task.Name = name
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	return s.repo.Update(ctx, task)
}

func (s *TaskService) SetCompleted(ctx context.Context, id uuid.UUID, completed bool) (types.Task, error) {
	return s.Update(ctx, id, TaskPatch{Completed: &completed})
}

// Delete soft-deletes the task.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

// InsertMock stores a canned task for smoke testing.
func (s *TaskService) InsertMock(ctx context.Context) (types.Task, error) {
	return s.repo.Create(ctx, types.Task{
		Name:        "Mock Task",
		Description: "This is a mock task inserted for testing.",
	})
}

func validTaskName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: taskName is required", ErrValidation)
	}
	if len(name) > maxTaskName {
		return "", fmt.Errorf("%w: taskName exceeds %d characters", ErrValidation, maxTaskName)
	}
	return name, nil
}
