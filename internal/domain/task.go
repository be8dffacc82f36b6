package domain

import (
	"errors"
	"strings"
	"time"
)

// TaskStatus enumerates lifecycle states for tasks.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
)

// Valid reports whether s is one of the defined statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// TaskPriority enumerates task urgency.
type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "High"
	TaskPriorityMedium TaskPriority = "Medium"
	TaskPriorityLow    TaskPriority = "Low"
)

// Valid reports whether p is one of the defined priorities.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityHigh, TaskPriorityMedium, TaskPriorityLow:
		return true
	}
	return false
}

// Task is a personal to-do item owned by exactly one user.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    string
	Priority    TaskPriority
	Status      TaskStatus
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskPatch carries the fields of a partial update. Nil fields are left untouched.
// ClearDueDate removes the due date and wins over DueDate.
type TaskPatch struct {
	Title        *string
	Description  *string
	Category     *string
	Priority     *TaskPriority
	Status       *TaskStatus
	DueDate      *time.Time
	ClearDueDate bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Status == nil && p.DueDate == nil && !p.ClearDueDate
}

// Apply merges the patch into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
}

// TaskFilter narrows a task listing. Zero values match everything.
type TaskFilter struct {
	Status   TaskStatus
	Priority TaskPriority
	Category string
	Search   string
}

// Matches reports whether t satisfies every set criterion.
func (f TaskFilter) Matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// TaskStats counts a user's tasks per status.
type TaskStats struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
}

// NewTaskStats builds stats from per-status counts. Total includes every counted task.
func NewTaskStats(counts map[TaskStatus]int64) TaskStats {
	var stats TaskStats
	for status, n := range counts {
		stats.Total += n
		switch status {
		case TaskStatusCompleted:
			stats.Completed = n
		case TaskStatusPending:
			stats.Pending = n
		case TaskStatusInProgress:
			stats.InProgress = n
		}
	}
	return stats
}

var ErrInvalidDueDate = errors.New("dueDate must be YYYY-MM-DD or RFC 3339")

// ParseDueDate accepts the date-input format used by browsers or a full RFC 3339
// timestamp. An empty string means no due date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, ErrInvalidDueDate
	}
	t = t.UTC()
	return &t, nil
}
