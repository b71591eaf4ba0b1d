package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthController reports dependency status. It always answers 200 so
// orchestrators do not restart the service while the database or cache is
// briefly unavailable; deliveries keep being accepted in that state.
type HealthController struct {
	checks []HealthCheck
}

func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks}
}

func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	status := "ok"
	results := make(fiber.Map, len(hc.checks))
	for _, check := range hc.checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			results[check.Name] = err.Error()
			continue
		}
		results[check.Name] = "ok"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
