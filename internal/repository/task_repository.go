package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/taskboard/task-service/internal/domain"
)

// TaskRepository encapsulates task persistence. Every read and mutation except Create
// is scoped by owner; a task owned by someone else behaves exactly like a missing one.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetForOwner(ctx context.Context, ownerID, id string) (*domain.Task, error)
	ListByOwner(ctx context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, error)
	UpdateForOwner(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error)
	DeleteForOwner(ctx context.Context, ownerID, id string) error
	CountByStatus(ctx context.Context, ownerID string) (map[domain.TaskStatus]int64, error)
}

const taskColumns = `id, user_id, title, description, category, priority, status, due_date, created_at, updated_at`

type taskRepository struct {
	db DB
}

// NewTaskRepository instantiates repository.
func NewTaskRepository(db DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	const query = `
        INSERT INTO tasks (user_id, title, description, category, priority, status, due_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		task.UserID,
		task.Title,
		task.Description,
		task.Category,
		string(task.Priority),
		string(task.Status),
		task.DueDate,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1 AND user_id=$2`
	return scanTask(r.db.QueryRow(ctx, query, id, ownerID))
}

func (r *taskRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.TaskFilter) ([]domain.Task, error) {
	clauses := []string{"user_id=$1"}
	args := []any{ownerID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, string(filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, strings.ToLower(filter.Search))
		clauses = append(clauses, fmt.Sprintf("POSITION($%d IN LOWER(title)) > 0", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at ASC, id ASC`,
		taskColumns, strings.Join(clauses, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateForOwner applies the patch in a single statement so the merge is atomic per row.
func (r *taskRepository) UpdateForOwner(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (*domain.Task, error) {
	if patch.Empty() {
		return r.GetForOwner(ctx, ownerID, id)
	}

	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Priority != nil {
		set("priority", string(*patch.Priority))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	switch {
	case patch.ClearDueDate:
		sets = append(sets, "due_date=NULL")
	case patch.DueDate != nil:
		set("due_date", *patch.DueDate)
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, id, ownerID)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id=$%d AND user_id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), taskColumns)

	return scanTask(r.db.QueryRow(ctx, query, args...))
}

func (r *taskRepository) DeleteForOwner(ctx context.Context, ownerID, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, id, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) CountByStatus(ctx context.Context, ownerID string) (map[domain.TaskStatus]int64, error) {
	const query = `SELECT status, COUNT(*) FROM tasks WHERE user_id=$1 GROUP BY status`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task     domain.Task
		priority string
		status   string
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Category,
		&priority,
		&status,
		&task.DueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	task.Priority = domain.TaskPriority(priority)
	task.Status = domain.TaskStatus(status)
	return &task, nil
}
