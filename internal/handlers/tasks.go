package handlers

import (
	"log/slog"
	"net/http"

	"taskboard/backend/internal/apperrors"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	tasks  services.TaskService
	logger *slog.Logger
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate"`
}

// UpdateTaskRequest distinguishes absent fields from explicit nulls.
type UpdateTaskRequest struct {
	Title       services.Optional[string] `json:"title"`
	Description services.Optional[string] `json:"description"`
	Status      services.Optional[string] `json:"status"`
	Priority    services.Optional[string] `json:"priority"`
	DueDate     services.Optional[string] `json:"dueDate"`
}

type TaskResponse struct {
	Task *models.Task `json:"task"`
}

func NewTaskHandler(tasks services.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{tasks: tasks, logger: logger}
}

func (h *TaskHandler) owner(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		RespondError(c, h.logger, apperrors.Unauthenticated(middleware.UnauthenticatedMessage))
	}
	return user, ok
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	user, ok := h.owner(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if !BindJSON(c, h.logger, &req) {
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), user.ID, services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusCreated, "Task created successfully", TaskResponse{Task: task})
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	user, ok := h.owner(c)
	if !ok {
		return
	}

	var params services.TaskListParams
	// Every field is a plain string, so binding cannot reject a query.
	_ = c.ShouldBindQuery(&params)

	page, err := h.tasks.List(c.Request.Context(), services.BuildTaskQuery(user.ID, params))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusOK, "", page)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	user, ok := h.owner(c)
	if !ok {
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusOK, "", TaskResponse{Task: task})
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	user, ok := h.owner(c)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !BindJSON(c, h.logger, &req) {
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), user.ID, c.Param("id"), services.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusOK, "Task updated successfully", TaskResponse{Task: task})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	user, ok := h.owner(c)
	if !ok {
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	Respond(c, http.StatusOK, "Task deleted successfully", gin.H{})
}
