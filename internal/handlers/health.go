package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/contentdb/internal/services"
)

// HealthHandler serves the health endpoint
type HealthHandler struct {
	Health *services.Health
}

// GetHealth handles GET /api/health
// @Summary Health check
// @Description Check the database and configured services
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	result := h.Health.Check(c.UserContext())
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
