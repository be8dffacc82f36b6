package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/task-service/internal/domain"
)

// MemoryUserRepository keeps users in process memory. It backs STORE_DRIVER=memory
// and the service tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

// NewMemoryUserRepository returns an empty in-memory user store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.byID[id]
	return &user, nil
}

// Count returns the number of stored users.
func (r *MemoryUserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// MemoryTaskRepository keeps tasks in process memory, preserving insertion order.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	order []string
}

// NewMemoryTaskRepository returns an empty in-memory task store.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]domain.Task)}
}

func (r *MemoryTaskRepository) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now

	r.tasks[task.ID] = copyTask(*task)
	r.order = append(r.order, task.ID)
	return nil
}

func (r *MemoryTaskRepository) GetForOwner(_ context.Context, ownerID, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.owned(ownerID, id)
	if !ok {
		return nil, ErrNotFound
	}
	out := copyTask(task)
	return &out, nil
}

func (r *MemoryTaskRepository) ListByOwner(_ context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]domain.Task, 0)
	for _, id := range r.order {
		task := r.tasks[id]
		if task.UserID != ownerID || !filter.Matches(&task) {
			continue
		}
		tasks = append(tasks, copyTask(task))
	}
	return tasks, nil
}

func (r *MemoryTaskRepository) UpdateForOwner(_ context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.owned(ownerID, id)
	if !ok {
		return nil, ErrNotFound
	}
	if !patch.Empty() {
		patch.Apply(&task)
		task.UpdatedAt = time.Now().UTC()
		r.tasks[id] = task
	}
	out := copyTask(task)
	return &out, nil
}

func (r *MemoryTaskRepository) DeleteForOwner(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned(ownerID, id); !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryTaskRepository) CountByStatus(_ context.Context, ownerID string) (map[domain.TaskStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.TaskStatus]int64)
	for _, task := range r.tasks {
		if task.UserID == ownerID {
			counts[task.Status]++
		}
	}
	return counts, nil
}

func (r *MemoryTaskRepository) owned(ownerID, id string) (domain.Task, bool) {
	task, ok := r.tasks[id]
	if !ok || task.UserID != ownerID {
		return domain.Task{}, false
	}
	return task, true
}

func copyTask(t domain.Task) domain.Task {
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}
