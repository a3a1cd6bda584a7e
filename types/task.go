package types

import (
	"time"

	"github.com/google/uuid"
)

// Task is a to-do item. Deleted tasks are kept as rows and hidden from reads.
type Task struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"taskName" db:"task_name"`
	Description string     `json:"taskDesc" db:"task_desc"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	Completed   bool       `json:"completed" db:"is_completed"`
	Deleted     bool       `json:"deleted" db:"is_deleted"`
}

// TaskDetail is a task enriched with its attachments and due-date helpers.
type TaskDetail struct {
	Task
	Overdue      bool         `json:"overdue"`
	DaysUntilDue *int64       `json:"daysUntilDue,omitempty"`
	Attachments  []Attachment `json:"attachments"`
}

// TaskSort names a sortable task column and its direction.
type TaskSort struct {
	Field string
	Desc  bool
}

// TaskPage is one page of a task listing. Page is zero-based.
type TaskPage struct {
	Items []Task
	Page  int
	Size  int
	Total int
}

// TotalPages returns the number of pages needed to hold Total items.
func (p TaskPage) TotalPages() int {
	if p.Size <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}
