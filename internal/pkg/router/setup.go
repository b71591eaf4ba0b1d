package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ledgersync/app/controllers"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired controllers and shared middleware state the
// routers mount. Admin may be nil when no admin credentials are configured.
type Dependencies struct {
	Config         *config.Config
	Webhook        *controllers.WebhookController
	Admin          *controllers.AdminDeliveryController
	Health         *controllers.HealthController
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The webhook route goes first so provider traffic never passes through
	// admin middleware.
	setup(app, NewWebhookRouter(deps), NewHttpRouter(deps), NewAdminRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
