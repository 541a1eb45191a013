package router

import (
	"context"
	"log/slog"
	"time"

	"taskboard/backend/internal/auth"
	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/config"
	"taskboard/backend/internal/database"
	"taskboard/backend/internal/handlers"
	"taskboard/backend/internal/middleware"
	"taskboard/backend/internal/monitoring"
	"taskboard/backend/internal/repositories"
	"taskboard/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

// Deps is everything the HTTP layer needs. Config and Pool are required;
// the rest is built from Config when nil. Cache may stay nil to disable
// task caching.
type Deps struct {
	Config  *config.Config
	Pool    *database.DatabasePool
	Cache   *cache.MultiLevelCache
	Tokens  *auth.TokenManager
	Logger  *slog.Logger
	Metrics *monitoring.Metrics
	Health  *monitoring.HealthChecker

	// Limiters are shared so the caller can run their cleanup loops.
	// IPLimiter guards task routes before authentication runs.
	AuthLimiter *middleware.RateLimiter
	IPLimiter   *middleware.RateLimiter
	APILimiter  *middleware.RateLimiter
}

func (d *Deps) defaults() {
	cfg := d.Config
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tokens == nil {
		d.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}
	if d.Metrics == nil {
		d.Metrics = monitoring.NewMetrics(nil)
	}
	if d.Health == nil {
		d.Health = monitoring.NewHealthChecker(5 * time.Second)
	}
	if cfg.RateLimit.Enabled {
		if d.AuthLimiter == nil {
			d.AuthLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		}
		if d.IPLimiter == nil {
			d.IPLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		}
		if d.APILimiter == nil {
			d.APILimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		}
	}
}

func New(d Deps) *gin.Engine {
	d.defaults()
	cfg := d.Config
	logger := d.Logger

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RecoveryWithLog(logger),
		middleware.RequestID(),
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.RequestLogger(logger),
		d.Metrics.Middleware(),
		middleware.SecurityHeaders(),
		cors.New(corsConfig(cfg)),
		middleware.MaxBodyBytes(maxBodyBytes),
	)

	users := repositories.NewUserRepository(d.Pool.DB, d.Metrics)
	tasks := repositories.NewTaskRepository(d.Pool.DB, d.Metrics)

	authService := services.NewAuthService(users, d.Tokens, cfg.Auth.BCryptCost)

	var taskService services.TaskService = services.NewTaskService(tasks)
	if d.Cache != nil && cfg.Cache.Enabled {
		taskService = services.NewCachedTaskService(taskService, d.Cache, cfg.Cache.TaskListTTL, logger)
		d.Metrics.RegisterCache(d.Cache)
	}

	d.Health.Register("database", true, d.Pool.Health)
	if d.Cache != nil {
		d.Health.Register("cache", false, d.Cache.Health)
	}

	authHandler := handlers.NewAuthHandler(authService, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger)
	requireAuth := middleware.RequireAuth(d.Tokens, authService, logger)

	r.GET("/", handlers.Banner)
	r.GET("/healthz", d.Health.LivenessHandler())
	r.GET("/readyz", d.Health.ReadinessHandler())
	r.GET("/metrics", d.Metrics.Handler())

	api := routes{
		auth:        authHandler,
		tasks:       taskHandler,
		requireAuth: requireAuth,
		authLimit:   limit(d.AuthLimiter, middleware.KeyByIP),
		ipLimit:     limit(d.IPLimiter, middleware.KeyByIP),
		apiLimit:    limit(d.APILimiter, middleware.KeyByUserOrIP),
	}
	api.mount(&r.RouterGroup)
	api.mount(r.Group("/api/v1"))

	return r
}

type routes struct {
	auth        *handlers.AuthHandler
	tasks       *handlers.TaskHandler
	requireAuth gin.HandlerFunc
	authLimit   gin.HandlerFunc
	ipLimit     gin.HandlerFunc
	apiLimit    gin.HandlerFunc
}

func (rt routes) mount(g *gin.RouterGroup) {
	authGroup := g.Group("/auth", rt.authLimit)
	authGroup.POST("/register", rt.auth.Register)
	authGroup.POST("/login", rt.auth.Login)
	authGroup.GET("/me", rt.requireAuth, rt.auth.Me)

	tasks := g.Group("/tasks", rt.ipLimit, rt.requireAuth, rt.apiLimit)
	tasks.POST("", rt.tasks.CreateTask)
	tasks.GET("", rt.tasks.ListTasks)
	tasks.GET("/:id", rt.tasks.GetTask)
	tasks.PUT("/:id", rt.tasks.UpdateTask)
	tasks.DELETE("/:id", rt.tasks.DeleteTask)
}

func limit(rl *middleware.RateLimiter, keyFn func(*gin.Context) string) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Middleware(keyFn)
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = nil
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	}
	return c
}

// RunLimiterCleanup prunes idle rate-limit buckets until ctx is done.
func RunLimiterCleanup(ctx context.Context, interval time.Duration, limiters ...*middleware.RateLimiter) {
	for _, rl := range limiters {
		if rl != nil {
			go rl.Run(ctx, interval)
		}
	}
}
