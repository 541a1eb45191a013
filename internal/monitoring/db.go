package monitoring

import (
	"errors"
	"strings"
	"time"

	"taskboard/backend/internal/repositories"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ObserveDB times one logical store operation. Lookups that find nothing are
// recorded as "not_found" and do not count as errors.
func (m *Metrics) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, repositories.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
		m.DBErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}

	m.DBQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func classifyDBErr(err error) string {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, repositories.ErrDuplicateEmail) {
		return "unique_violation"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "23503":
			return "foreign_key_violation"
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "unique constraint"):
		return "unique_violation"
	default:
		return "unknown"
	}
}
