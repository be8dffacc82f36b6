package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/task-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserLoggedIn   EventType = "user_logged_in"
	EventTaskCreated    EventType = "task_created"
	EventTaskUpdated    EventType = "task_updated"
	EventTaskDeleted    EventType = "task_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	TaskID    string      `json:"task_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, userID, taskID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TaskCreatedPayload payload.
type TaskCreatedPayload struct {
	Title    string              `json:"title"`
	Priority domain.TaskPriority `json:"priority"`
	Status   domain.TaskStatus   `json:"status"`
}

// TaskUpdatedPayload payload. OldStatus equals NewStatus when the status did not change.
type TaskUpdatedPayload struct {
	OldStatus domain.TaskStatus `json:"old_status"`
	NewStatus domain.TaskStatus `json:"new_status"`
}
