package models

import (
	"math"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "Pending"
	StatusCompleted TaskStatus = "Completed"
)

func (s TaskStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// ParseTaskStatus matches exactly; anything else reports false.
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	s := TaskStatus(raw)
	return s, s.Valid()
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities High > Medium > Low.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func ParseTaskPriority(raw string) (TaskPriority, bool) {
	p := TaskPriority(raw)
	return p, p.Valid()
}

type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID    `json:"userId" gorm:"type:uuid;not null;index"`
	Title       string       `json:"title" gorm:"not null"`
	Description string       `json:"description" gorm:"not null"`
	Status      TaskStatus   `json:"status" gorm:"type:varchar(16);not null;default:'Pending';index"`
	Priority    TaskPriority `json:"priority" gorm:"type:varchar(16);not null;default:'Medium'"`
	DueDate     *time.Time   `json:"dueDate"`
	CreatedAt   time.Time    `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

type TaskSort string

const (
	SortNewest   TaskSort = "newest"
	SortOldest   TaskSort = "oldest"
	SortDueSoon  TaskSort = "dueSoon"
	SortPriority TaskSort = "priority"
)

func (s TaskSort) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortDueSoon, SortPriority:
		return true
	}
	return false
}

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// TaskQuery is a normalized list request. Empty Status/Priority/Search mean
// no filter; Page and Limit are already clamped.
type TaskQuery struct {
	OwnerID  uuid.UUID
	Status   TaskStatus
	Priority TaskPriority
	Search   string
	Sort     TaskSort
	Page     int
	Limit    int
}

// MaxPage is the highest page whose offset still fits in an int.
func MaxPage(limit int) int {
	if limit < 1 {
		limit = 1
	}
	return math.MaxInt / limit
}

// Offset is the number of rows before the page. Page is clamped to
// [1, MaxPage(Limit)] so the product cannot overflow.
func (q TaskQuery) Offset() int {
	if q.Limit < 1 {
		return 0
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if max := MaxPage(q.Limit); page > max {
		page = max
	}
	return (page - 1) * q.Limit
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination reports at least one page, even for an empty result set.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 1
	if limit > 0 && total > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}
}

type TaskPage struct {
	Tasks      []Task     `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}
