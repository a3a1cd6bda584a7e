package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
)

const taskColumns = `id, task_name, task_desc, created_at, due_date, is_completed, is_deleted`

// Sortable task fields mapped to their columns.
var taskSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "task_name",
	"dueDate":   "due_date",
}

// TaskSortable reports whether field can be used in a TaskSort.
func TaskSortable(field string) bool {
	_, ok := taskSortColumns[field]
	return ok
}

// TaskRepository handles persistence for tasks. Soft-deleted rows are
// invisible to every read.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) List(ctx context.Context, offset, limit int, sort types.TaskSort) ([]types.Task, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	column, ok := taskSortColumns[sort.Field]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported sort field %q", sort.Field)
	}
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}

	const countQuery = `SELECT COUNT(1) FROM task WHERE NOT is_deleted`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM task
		WHERE NOT is_deleted
		ORDER BY %s %s NULLS LAST, id
		OFFSET $1 LIMIT $2`, taskColumns, column, direction)
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE id = $1 AND NOT is_deleted`
	return scanTask(r.db.QueryRowContext(ctx, query, id))
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = time.Now().UTC()
	task.Deleted = false

	const query = `
		INSERT INTO task (id, task_name, task_desc, created_at, due_date, is_completed, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.Name,
		task.Description,
		task.CreatedAt,
		nullTime(task.DueDate),
		task.Completed,
	); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// Update writes the mutable fields of task.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		UPDATE task
		SET task_name = $1,
			task_desc = $2,
			due_date = $3,
			is_completed = $4
		WHERE id = $5 AND NOT is_deleted`
	result, err := r.db.ExecContext(
		ctx,
		query,
		task.Name,
		task.Description,
		nullTime(task.DueDate),
		task.Completed,
		task.ID,
	)
	if err != nil {
		return types.Task{}, err
	}
	if err := expectAffected(result); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

// SoftDelete marks the task deleted. Deleting twice reports ErrNotFound.
func (r *TaskRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE task SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func scanTask(row rowScanner) (types.Task, error) {
	var (
		task types.Task
		due  sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Description,
		&task.CreatedAt,
		&due,
		&task.Completed,
		&task.Deleted,
	)
	if err != nil {
		return types.Task{}, notFound(err)
	}
	if due.Valid {
		t := due.Time
		task.DueDate = &t
	}
	return task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
