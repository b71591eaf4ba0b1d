package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ledgersync/app/controllers"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
	"github.com/ManuelReschke/ledgersync/internal/pkg/middleware"
)

const (
	adminRateLimit       = 60
	adminRateLimitWindow = time.Minute
)

// AdminRouter mounts the operator JSON API under /admin/api.
type AdminRouter struct {
	controller *controllers.AdminDeliveryController
	admin      config.Admin
	storage    fiber.Storage
}

func (a AdminRouter) InstallRouter(app *fiber.App) {
	if a.controller == nil || !a.admin.Enabled() {
		log.Info("[Router] admin API disabled, ADMIN_USER or ADMIN_PASSWORD_HASH not set")
		return
	}

	api := app.Group("/admin/api", limiter.New(limiter.Config{
		Max:        adminRateLimit,
		Expiration: adminRateLimitWindow,
		Storage:    a.storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	}), middleware.AdminAuth(a.admin))

	api.Get("/deliveries", a.controller.HandleListDeliveries)
	api.Get("/deliveries/:id", a.controller.HandleGetDelivery)
	api.Post("/deliveries/:id/replay", a.controller.HandleReplayDelivery)
	api.Get("/stats", a.controller.HandleStats)
	api.Delete("/stats/counters", a.controller.HandleResetCounters)
}

func NewAdminRouter(deps Dependencies) *AdminRouter {
	r := &AdminRouter{controller: deps.Admin, storage: deps.LimiterStorage}
	if deps.Config != nil {
		r.admin = deps.Config.Admin
	}
	return r
}
