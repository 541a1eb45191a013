package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"taskboard/backend/internal/apperrors"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

const taskNotFound = "Task not found"

type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	FindOwned(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error)
	UpdateOwned(ctx context.Context, task *models.Task) error
	DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error
	List(ctx context.Context, q models.TaskQuery) (*models.TaskPage, error)
}

type CreateTaskInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
}

// UpdateTaskInput changes only the fields that are set.
type UpdateTaskInput struct {
	Title       Optional[string]
	Description Optional[string]
	Status      Optional[string]
	Priority    Optional[string]
	DueDate     Optional[string]
}

type TaskService interface {
	Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*models.Task, error)
	Get(ctx context.Context, ownerID uuid.UUID, taskID string) (*models.Task, error)
	List(ctx context.Context, q models.TaskQuery) (*models.TaskPage, error)
	Update(ctx context.Context, ownerID uuid.UUID, taskID string, in UpdateTaskInput) (*models.Task, error)
	Delete(ctx context.Context, ownerID uuid.UUID, taskID string) error
}

type TaskServiceImpl struct {
	store TaskStore
}

func NewTaskService(store TaskStore) *TaskServiceImpl {
	return &TaskServiceImpl{store: store}
}

// ParseDueDate accepts RFC3339 timestamps or YYYY-MM-DD dates. Anything else,
// including an empty string, yields nil.
func ParseDueDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t
	}
	return nil
}

func (s *TaskServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, apperrors.Validation("Title and description are required")
	}
	if err := checkLengths(title, description); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if raw := strings.TrimSpace(in.Priority); raw != "" {
		p, ok := models.ParseTaskPriority(raw)
		if !ok {
			return nil, invalidPriority()
		}
		priority = p
	}

	task := &models.Task{
		UserID:      ownerID,
		Title:       title,
		Description: description,
		Status:      models.StatusPending,
		Priority:    priority,
		DueDate:     ParseDueDate(in.DueDate),
	}

	if err := s.store.Create(ctx, task); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("create task: %w", err))
	}
	return task, nil
}

func (s *TaskServiceImpl) Get(ctx context.Context, ownerID uuid.UUID, taskID string) (*models.Task, error) {
	return s.findOwned(ctx, ownerID, taskID)
}

func (s *TaskServiceImpl) List(ctx context.Context, q models.TaskQuery) (*models.TaskPage, error) {
	page, err := s.store.List(ctx, q)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("list tasks: %w", err))
	}
	return page, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, ownerID uuid.UUID, taskID string, in UpdateTaskInput) (*models.Task, error) {
	task, err := s.findOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if in.Title.Set {
		title := strings.TrimSpace(in.Title.Value)
		if title == "" {
			return nil, apperrors.Validation("Title cannot be empty")
		}
		task.Title = title
	}
	if in.Description.Set {
		description := strings.TrimSpace(in.Description.Value)
		if description == "" {
			return nil, apperrors.Validation("Description cannot be empty")
		}
		task.Description = description
	}
	if in.Status.Set {
		status, ok := models.ParseTaskStatus(in.Status.Value)
		if !ok {
			return nil, apperrors.Validation("Status must be one of Pending, Completed",
				apperrors.FieldError{Field: "status", Rule: "oneof", Param: "Pending Completed", Message: "must be one of Pending, Completed"})
		}
		task.Status = status
	}
	if in.Priority.Set {
		priority, ok := models.ParseTaskPriority(in.Priority.Value)
		if !ok {
			return nil, invalidPriority()
		}
		task.Priority = priority
	}
	if in.DueDate.Set {
		task.DueDate = ParseDueDate(in.DueDate.Value)
	}
	if err := checkLengths(task.Title, task.Description); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOwned(ctx, task); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound(taskNotFound)
		}
		return nil, apperrors.Internal(fmt.Errorf("update task: %w", err))
	}
	return task, nil
}

func (s *TaskServiceImpl) Delete(ctx context.Context, ownerID uuid.UUID, taskID string) error {
	id, err := uuid.FromString(taskID)
	if err != nil {
		return apperrors.NotFound(taskNotFound)
	}

	if err := s.store.DeleteOwned(ctx, ownerID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.NotFound(taskNotFound)
		}
		return apperrors.Internal(fmt.Errorf("delete task: %w", err))
	}
	return nil
}

// findOwned treats a malformed id exactly like a task owned by someone else.
func (s *TaskServiceImpl) findOwned(ctx context.Context, ownerID uuid.UUID, taskID string) (*models.Task, error) {
	id, err := uuid.FromString(taskID)
	if err != nil {
		return nil, apperrors.NotFound(taskNotFound)
	}

	task, err := s.store.FindOwned(ctx, ownerID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(taskNotFound)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("find task: %w", err))
	}
	return task, nil
}

func checkLengths(title, description string) error {
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return apperrors.Validation(fmt.Sprintf("Title must be at most %d characters", models.MaxTitleLength),
			apperrors.FieldError{Field: "title", Rule: "max", Param: fmt.Sprint(models.MaxTitleLength), Message: fmt.Sprintf("must be at most %d", models.MaxTitleLength)})
	}
	if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
		return apperrors.Validation(fmt.Sprintf("Description must be at most %d characters", models.MaxDescriptionLength),
			apperrors.FieldError{Field: "description", Rule: "max", Param: fmt.Sprint(models.MaxDescriptionLength), Message: fmt.Sprintf("must be at most %d", models.MaxDescriptionLength)})
	}
	return nil
}

func invalidPriority() *apperrors.Error {
	return apperrors.Validation("Priority must be one of Low, Medium, High",
		apperrors.FieldError{Field: "priority", Rule: "oneof", Param: "Low Medium High", Message: "must be one of Low, Medium, High"})
}
