package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/ledgersync/app/controllers"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
	"github.com/ManuelReschke/ledgersync/internal/pkg/middleware"
)

// HttpRouter mounts the operational endpoints: liveness and the fiber monitor.
type HttpRouter struct {
	health *controllers.HealthController
	admin  config.Admin
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if h.health != nil {
		app.Get("/healthz", h.health.HandleHealth)
	}

	// fiber metrics, only when someone can log in to see them
	if h.admin.Enabled() {
		app.Get("/metrics", middleware.AdminAuth(h.admin), monitor.New(monitor.Config{
			Title: "ledgersync metrics",
		}))
	}
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	r := &HttpRouter{health: deps.Health}
	if deps.Config != nil {
		r.admin = deps.Config.Admin
	}
	return r
}
