package service

import (
	"context"

	"github.com/taskboard/task-service/internal/events"
)

// StatsInvalidator drops a user's cached stats whenever one of their tasks changes.
type StatsInvalidator struct {
	dispatcher events.Dispatcher
	cache      StatsCache
}

// NewStatsInvalidator creates the subscriber. A nil cache makes it a no-op.
func NewStatsInvalidator(dispatcher events.Dispatcher, cache StatsCache) *StatsInvalidator {
	return &StatsInvalidator{dispatcher: dispatcher, cache: cache}
}

// RegisterHandlers subscribes to task mutations.
func (i *StatsInvalidator) RegisterHandlers() {
	if i.dispatcher == nil || i.cache == nil {
		return
	}
	i.dispatcher.Subscribe(events.EventTaskCreated, i.invalidate)
	i.dispatcher.Subscribe(events.EventTaskUpdated, i.invalidate)
	i.dispatcher.Subscribe(events.EventTaskDeleted, i.invalidate)
}

func (i *StatsInvalidator) invalidate(ctx context.Context, event events.Event) error {
	return i.cache.Invalidate(ctx, event.UserID)
}
