package monitoring

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultCheckTimeout = 5 * time.Second

type HealthCheckFunc func(ctx context.Context) error

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

// HealthChecker runs named dependency checks on demand. Checks run in
// parallel, each under its own timeout.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	critical  map[string]bool
	timeout   time.Duration
	startTime time.Time
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		critical:  make(map[string]bool),
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// Register adds a check. A failing critical check makes the service not
// ready; a failing non-critical one only reports "degraded".
func (h *HealthChecker) Register(name string, critical bool, fn HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
	h.critical[name] = critical
}

// Run executes every check and reports whether all critical checks passed.
func (h *HealthChecker) Run(ctx context.Context) (map[string]HealthCheck, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]HealthCheckFunc, len(names))
	critical := make(map[string]bool, len(names))
	for _, name := range names {
		checks[name] = h.checks[name]
		critical[name] = h.critical[name]
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]HealthCheck, len(names))
		ready   = true
	)

	for _, name := range names {
		wg.Add(1)
		go func(name string, fn HealthCheckFunc) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			result := HealthCheck{Name: name, Status: "healthy", LastRun: time.Now()}
			if err := fn(checkCtx); err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
				if !critical[name] {
					result.Status = "degraded"
				}
			}

			mu.Lock()
			results[name] = result
			if result.Status == "unhealthy" {
				ready = false
			}
			mu.Unlock()
		}(name, checks[name])
	}
	wg.Wait()

	return results, ready
}

func (h *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ready := h.Run(c.Request.Context())

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not ready", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"checks":    checks,
		})
	}
}
