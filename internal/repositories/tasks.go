package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var priorityRankSQL = fmt.Sprintf("CASE priority WHEN '%s' THEN %d WHEN '%s' THEN %d ELSE %d END DESC",
	models.PriorityHigh, models.PriorityHigh.Rank(),
	models.PriorityMedium, models.PriorityMedium.Rank(),
	models.PriorityLow.Rank())

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type TaskRepository struct {
	db  *gorm.DB
	obs Observer
}

func NewTaskRepository(db *gorm.DB, obs Observer) *TaskRepository {
	return &TaskRepository{db: db, obs: observerOrNoop(obs)}
}

// OwnedBy restricts a query to one owner's tasks.
func OwnedBy(ownerID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", ownerID)
	}
}

func WithStatus(status models.TaskStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !status.Valid() {
			return db
		}
		return db.Where("status = ?", status)
	}
}

func WithPriority(priority models.TaskPriority) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !priority.Valid() {
			return db
		}
		return db.Where("priority = ?", priority)
	}
}

// MatchingSearch is a case-insensitive literal substring match on title or
// description. LIKE metacharacters in the term match themselves.
// SQLite's LOWER folds ASCII only, so non-ASCII letters match case-sensitively there.
func MatchingSearch(term string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" {
			return db
		}
		pattern := "%" + EscapeLike(strings.ToLower(term)) + "%"
		return db.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
}

// OrderedBy applies the sort order; id breaks remaining ties so pages are stable.
func OrderedBy(sort models.TaskSort) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch sort {
		case models.SortOldest:
			db = db.Order("created_at ASC")
		case models.SortDueSoon:
			db = db.Order("due_date ASC").Order("created_at DESC")
		case models.SortPriority:
			db = db.Order(priorityRankSQL).Order("created_at DESC")
		default:
			db = db.Order("created_at DESC")
		}
		return db.Order("id ASC")
	}
}

func Paginate(q models.TaskQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(q.Offset()).Limit(q.Limit)
	}
}

func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.obs.ObserveDB("tasks.create", func() error {
		return r.db.WithContext(ctx).Create(task).Error
	})
}

func (r *TaskRepository) FindOwned(ctx context.Context, ownerID, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.obs.ObserveDB("tasks.find", func() error {
		return r.db.WithContext(ctx).
			Scopes(OwnedBy(ownerID)).
			Where("id = ?", id).
			First(&task).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateOwned writes every mutable column of task, scoped to its owner.
func (r *TaskRepository) UpdateOwned(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()

	return r.obs.ObserveDB("tasks.update", func() error {
		result := r.db.WithContext(ctx).
			Model(&models.Task{}).
			Scopes(OwnedBy(task.UserID)).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"title":       task.Title,
				"description": task.Description,
				"status":      task.Status,
				"priority":    task.Priority,
				"due_date":    task.DueDate,
				"updated_at":  task.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *TaskRepository) DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error {
	return r.obs.ObserveDB("tasks.delete", func() error {
		result := r.db.WithContext(ctx).
			Scopes(OwnedBy(ownerID)).
			Where("id = ?", id).
			Delete(&models.Task{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// List counts the filtered set and fetches one page of it inside a single
// read-only transaction.
func (r *TaskRepository) List(ctx context.Context, q models.TaskQuery) (*models.TaskPage, error) {
	filters := []func(*gorm.DB) *gorm.DB{
		OwnedBy(q.OwnerID),
		WithStatus(q.Status),
		WithPriority(q.Priority),
		MatchingSearch(q.Search),
	}

	var total int64
	tasks := make([]models.Task, 0)

	err := r.obs.ObserveDB("tasks.list", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Task{}).Scopes(filters...).Count(&total).Error; err != nil {
				return err
			}
			return tx.Scopes(filters...).
				Scopes(OrderedBy(q.Sort), Paginate(q)).
				Find(&tasks).Error
		}, &sql.TxOptions{ReadOnly: true})
	})
	if err != nil {
		return nil, err
	}

	return &models.TaskPage{
		Tasks:      tasks,
		Pagination: models.NewPagination(q.Page, q.Limit, total),
	}, nil
}
