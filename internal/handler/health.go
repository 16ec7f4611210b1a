package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/cache"
)

// HealthHandler reports component status.
type HealthHandler struct {
	db    *gorm.DB
	redis *cache.RedisClient
}

// NewHealthHandler creates the handler. redis may be nil.
func NewHealthHandler(db *gorm.DB, redis *cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// ComponentCheck is one component's status.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the full health report.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check reports database and cache health.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	dbStart := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "failed to get database connection",
		}
	} else if err := sqlDB.Ping(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// cache loss only degrades initial-load latency, never correctness
	if h.redis != nil {
		cacheStart := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := h.redis.GetCanvas(ctx, "health-probe"); err != nil {
			response.Checks["cache"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["cache"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(cacheStart).String(),
			}
		}
		cancel()
	} else {
		response.Checks["cache"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness is the K8s liveness probe.
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness is the K8s readiness probe.
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	if err := sqlDB.Ping(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
