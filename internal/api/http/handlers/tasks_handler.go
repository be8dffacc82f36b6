package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskboard/task-service/internal/api/dto"
	"github.com/taskboard/task-service/internal/auth"
	"github.com/taskboard/task-service/internal/service"
	apperrors "github.com/taskboard/task-service/pkg/util"
)

// TasksHandler manages the authenticated user's task endpoints.
type TasksHandler struct {
	service *service.TaskService
}

// NewTasksHandler constructs handler.
func NewTasksHandler(taskService *service.TaskService) *TasksHandler {
	return &TasksHandler{service: taskService}
}

// ListTasks GET /tasks.
func (h *TasksHandler) ListTasks(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var query dto.TaskListQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	tasks, err := h.service.List(c.UserContext(), userID, query.Filter())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTaskListResponse(tasks))
}

// CreateTask POST /tasks.
func (h *TasksHandler) CreateTask(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TaskCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Status:      req.Status,
	}
	if req.DueDate != nil {
		input.DueDate = *req.DueDate
	}
	task, err := h.service.Create(c.UserContext(), userID, input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewTaskResponse(task))
}

// Stats GET /tasks/stats.
func (h *TasksHandler) Stats(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	stats, err := h.service.Stats(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// GetTask GET /tasks/:id.
func (h *TasksHandler) GetTask(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	task, err := h.service.Get(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTaskResponse(task))
}

// UpdateTask PUT /tasks/:id.
func (h *TasksHandler) UpdateTask(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TaskUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Status:      req.Status,
	}
	if req.DueDate.Set {
		// null and "" both clear the due date
		due := req.DueDate.Value
		input.DueDate = &due
	}
	task, err := h.service.Update(c.UserContext(), userID, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTaskResponse(task))
}

// DeleteTask DELETE /tasks/:id.
func (h *TasksHandler) DeleteTask(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.Delete(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Task deleted successfully"})
}
