package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/taskboard/task-service/internal/domain"
)

// NullableString distinguishes an absent JSON field from an explicit null.
type NullableString struct {
	Set   bool
	Valid bool
	Value string
}

// UnmarshalJSON records that the field was present.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		n.Value = ""
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// CreateTaskRequest payload.
type CreateTaskRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Priority    domain.TaskPriority `json:"priority"`
	Status      domain.TaskStatus   `json:"status"`
	DueDate     *string             `json:"dueDate"`
}

// UpdateTaskRequest payload. Only fields present in the body are applied.
type UpdateTaskRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Category    *string              `json:"category"`
	Priority    *domain.TaskPriority `json:"priority"`
	Status      *domain.TaskStatus   `json:"status"`
	DueDate     NullableString       `json:"dueDate"`
}

// TaskListQuery captures query filters for GET /tasks.
type TaskListQuery struct {
	Status   string `query:"status"`
	Priority string `query:"priority"`
	Category string `query:"category"`
	Search   string `query:"search"`
}

// Filter converts the query into a domain filter.
func (q TaskListQuery) Filter() domain.TaskFilter {
	return domain.TaskFilter{
		Status:   domain.TaskStatus(q.Status),
		Priority: domain.TaskPriority(q.Priority),
		Category: q.Category,
		Search:   q.Search,
	}
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Priority    domain.TaskPriority `json:"priority"`
	Status      domain.TaskStatus   `json:"status"`
	DueDate     *time.Time          `json:"dueDate"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// NewTaskResponse maps a domain task.
func NewTaskResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		Category:    task.Category,
		Priority:    task.Priority,
		Status:      task.Status,
		DueDate:     task.DueDate,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// NewTaskListResponse maps tasks, always yielding a JSON array.
func NewTaskListResponse(tasks []domain.Task) []TaskResponse {
	items := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		items = append(items, NewTaskResponse(&tasks[i]))
	}
	return items
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}
