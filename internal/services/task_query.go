package services

import (
	"strconv"
	"strings"

	"taskboard/backend/internal/models"

	"github.com/gofrs/uuid"
)

// TaskListParams holds list parameters exactly as the client sent them.
type TaskListParams struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Search   string `form:"search"`
	Sort     string `form:"sort"`
	Page     string `form:"page"`
	Limit    string `form:"limit"`
}

// BuildTaskQuery normalizes raw list parameters. Unknown status, priority or
// sort values are dropped rather than rejected.
func BuildTaskQuery(ownerID uuid.UUID, p TaskListParams) models.TaskQuery {
	q := models.TaskQuery{
		OwnerID: ownerID,
		Search:  strings.TrimSpace(p.Search),
		Sort:    models.SortNewest,
		Page:    1,
		Limit:   models.DefaultPageLimit,
	}

	if status, ok := models.ParseTaskStatus(p.Status); ok {
		q.Status = status
	}
	if priority, ok := models.ParseTaskPriority(p.Priority); ok {
		q.Priority = priority
	}
	if sort := models.TaskSort(p.Sort); sort.Valid() {
		q.Sort = sort
	}

	if limit, err := strconv.Atoi(strings.TrimSpace(p.Limit)); err == nil {
		q.Limit = clamp(limit, 1, models.MaxPageLimit)
	}
	if page, err := strconv.Atoi(strings.TrimSpace(p.Page)); err == nil {
		q.Page = clamp(page, 1, models.MaxPage(q.Limit))
	}

	return q
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
