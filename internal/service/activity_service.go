package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskboard/task-service/internal/events"
	"github.com/taskboard/task-service/internal/observability"
)

// ActivityService records every domain event in the log and in metrics.
type ActivityService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewActivityService creates the service.
func NewActivityService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *ActivityService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handleUserEvent)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handleUserEvent)
	a.dispatcher.Subscribe(events.EventTaskCreated, a.handleTaskEvent)
	a.dispatcher.Subscribe(events.EventTaskUpdated, a.handleTaskEvent)
	a.dispatcher.Subscribe(events.EventTaskDeleted, a.handleTaskEvent)
}

func (a *ActivityService) handleUserEvent(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID))
	return nil
}

func (a *ActivityService) handleTaskEvent(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("task_id", event.TaskID),
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	a.logger.Info(string(event.Type), fields...)
	return nil
}
