package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskboard/task-service/internal/domain"
	"github.com/taskboard/task-service/internal/events"
	"github.com/taskboard/task-service/internal/observability"
	"github.com/taskboard/task-service/internal/repository"
	apperrors "github.com/taskboard/task-service/pkg/util"
)

// StatsCache is the read-through cache consulted by Stats.
//
// Invalidate bumps a per-user generation. SetIfGeneration stores stats only
// while the generation still equals the one read before counting, so counts
// taken before a concurrent write are never cached.
type StatsCache interface {
	Get(ctx context.Context, userID string) (*domain.TaskStats, bool, error)
	Generation(ctx context.Context, userID string) (int64, error)
	SetIfGeneration(ctx context.Context, userID string, generation int64, stats domain.TaskStats) (bool, error)
	Invalidate(ctx context.Context, userID string) error
}

// TaskService implements task lifecycle operations scoped to a single owner.
type TaskService struct {
	tasks      repository.TaskRepository
	cache      StatsCache
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// TaskDependencies lists collaborators for TaskService. Cache, Dispatcher and
// Metrics are optional.
type TaskDependencies struct {
	TaskRepo   repository.TaskRepository
	Cache      StatsCache
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewTaskService builds the service.
func NewTaskService(deps TaskDependencies) *TaskService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:      deps.TaskRepo,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// TaskCreateInput captures data for creating a task. Empty Priority, Status and
// DueDate take their defaults.
type TaskCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TaskPriority
	Status      domain.TaskStatus
	DueDate     string
}

// TaskUpdateInput carries a partial update. Nil fields are left unchanged and a
// DueDate pointing at "" clears the due date.
type TaskUpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *domain.TaskPriority
	Status      *domain.TaskStatus
	DueDate     *string
}

// Create persists a new task owned by userID.
func (s *TaskService) Create(ctx context.Context, userID string, input TaskCreateInput) (*domain.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, invalidPriority(priority)
	}
	status := input.Status
	if status == "" {
		status = domain.TaskStatusPending
	}
	if !status.Valid() {
		return nil, invalidStatus(status)
	}
	due, err := domain.ParseDueDate(input.DueDate)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"dueDate": input.DueDate})
	}

	task := &domain.Task{
		UserID:      userID,
		Title:       title,
		Description: input.Description,
		Category:    strings.TrimSpace(input.Category),
		Priority:    priority,
		Status:      status,
		DueDate:     due,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}

	s.publishEvent(ctx, events.New(events.EventTaskCreated, userID, task.ID, events.TaskCreatedPayload{
		Title:    task.Title,
		Priority: task.Priority,
		Status:   task.Status,
	}))
	return task, nil
}

// List returns the owner's tasks that match filter, oldest first.
func (s *TaskService) List(ctx context.Context, userID string, filter domain.TaskFilter) ([]domain.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidStatus(filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, invalidPriority(filter.Priority)
	}
	filter.Search = strings.TrimSpace(filter.Search)

	tasks, err := s.tasks.ListByOwner(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return tasks, nil
}

// Get fetches one task. A task owned by someone else is reported as not found.
func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if !validTaskID(taskID) {
		return nil, taskNotFound(taskID)
	}
	task, err := s.tasks.GetForOwner(ctx, userID, taskID)
	if err != nil {
		return nil, mapTaskError(err, taskID)
	}
	return task, nil
}

// Update merges the supplied fields into the task and returns the stored result.
func (s *TaskService) Update(ctx context.Context, userID, taskID string, input TaskUpdateInput) (*domain.Task, error) {
	if !validTaskID(taskID) {
		return nil, taskNotFound(taskID)
	}
	patch, err := buildPatch(input)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.Get(ctx, userID, taskID)
	}

	var oldStatus domain.TaskStatus
	if patch.Status != nil {
		current, err := s.tasks.GetForOwner(ctx, userID, taskID)
		if err != nil {
			return nil, mapTaskError(err, taskID)
		}
		oldStatus = current.Status
	}

	task, err := s.tasks.UpdateForOwner(ctx, userID, taskID, patch)
	if err != nil {
		return nil, mapTaskError(err, taskID)
	}
	if oldStatus == "" {
		oldStatus = task.Status
	}

	s.publishEvent(ctx, events.New(events.EventTaskUpdated, userID, task.ID, events.TaskUpdatedPayload{
		OldStatus: oldStatus,
		NewStatus: task.Status,
	}))
	return task, nil
}

// Delete permanently removes the task.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if !validTaskID(taskID) {
		return taskNotFound(taskID)
	}
	if err := s.tasks.DeleteForOwner(ctx, userID, taskID); err != nil {
		return mapTaskError(err, taskID)
	}
	s.publishEvent(ctx, events.New(events.EventTaskDeleted, userID, taskID, nil))
	return nil
}

// Stats counts the owner's tasks per status. Cached values are served when
// present; cache failures fall back to the store.
func (s *TaskService) Stats(ctx context.Context, userID string) (domain.TaskStats, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.metrics.RecordCacheLookup("error")
			s.logger.Warn("stats cache read failed", zap.String("user_id", userID), zap.Error(err))
		case ok:
			s.metrics.RecordCacheLookup("hit")
			return *cached, nil
		default:
			s.metrics.RecordCacheLookup("miss")
		}

		generation, err = s.cache.Generation(ctx, userID)
		if err != nil {
			s.logger.Warn("stats cache generation read failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			cacheable = true
		}
	}

	counts, err := s.tasks.CountByStatus(ctx, userID)
	if err != nil {
		return domain.TaskStats{}, apperrors.NewPersistenceError(err)
	}
	stats := domain.NewTaskStats(counts)

	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, userID, generation, stats)
		switch {
		case err != nil:
			s.logger.Warn("stats cache write failed", zap.String("user_id", userID), zap.Error(err))
		case !stored:
			s.logger.Debug("stats changed while counting; not cached", zap.String("user_id", userID))
		}
	}
	return stats, nil
}

func buildPatch(input TaskUpdateInput) (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		Description: input.Description,
		Priority:    input.Priority,
		Status:      input.Status,
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return domain.TaskPatch{}, apperrors.NewValidationError("title cannot be empty", nil)
		}
		patch.Title = &title
	}
	if input.Category != nil {
		category := strings.TrimSpace(*input.Category)
		patch.Category = &category
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return domain.TaskPatch{}, invalidPriority(*input.Priority)
	}
	if input.Status != nil && !input.Status.Valid() {
		return domain.TaskPatch{}, invalidStatus(*input.Status)
	}
	if input.DueDate != nil {
		due, err := domain.ParseDueDate(*input.DueDate)
		if err != nil {
			return domain.TaskPatch{}, apperrors.NewValidationError(err.Error(), map[string]any{"dueDate": *input.DueDate})
		}
		if due == nil {
			patch.ClearDueDate = true
		} else {
			patch.DueDate = due
		}
	}
	return patch, nil
}

func (s *TaskService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validTaskID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func taskNotFound(taskID string) error {
	return apperrors.NewNotFound("task", map[string]any{"id": taskID})
}

func mapTaskError(err error, taskID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return taskNotFound(taskID)
	}
	return apperrors.NewPersistenceError(err)
}

func invalidStatus(status domain.TaskStatus) error {
	return apperrors.NewValidationError("invalid status", map[string]any{
		"status":  string(status),
		"allowed": []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress, domain.TaskStatusCompleted},
	})
}

func invalidPriority(priority domain.TaskPriority) error {
	return apperrors.NewValidationError("invalid priority", map[string]any{
		"priority": string(priority),
		"allowed":  []domain.TaskPriority{domain.TaskPriorityHigh, domain.TaskPriorityMedium, domain.TaskPriorityLow},
	})
}
