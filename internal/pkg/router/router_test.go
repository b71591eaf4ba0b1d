package router

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/ledgersync/app/controllers"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
	"github.com/ManuelReschke/ledgersync/internal/pkg/entitysync"
	"github.com/ManuelReschke/ledgersync/internal/pkg/testutil"
	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

func newTestApp(t *testing.T, admin config.Admin) *fiber.App {
	t.Helper()
	repos := repository.NewRepositories(testutil.OpenTestDB(t))
	supervisor := webhook.NewSupervisor(
		webhook.NewEventLog(repos.Delivery, nil),
		entitysync.NewDefaultRegistry(nil, repos.Entity, "quickbooks"),
		webhook.InlineSubmitter{},
		webhook.Options{Source: "quickbooks"},
	)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config:  &config.Config{Admin: admin},
		Webhook: controllers.NewWebhookController(supervisor),
		Admin:   controllers.NewAdminDeliveryController(repos.Delivery, repos.Entity, nil, nil),
		Health: controllers.NewHealthController(controllers.HealthCheck{
			Name:  "database",
			Check: func(context.Context) error { return nil },
		}),
	})
	return app
}

func status(t *testing.T, app *fiber.App, method, path, auth string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestInstallRouter_AdminDisabled(t *testing.T) {
	app := newTestApp(t, config.Admin{})

	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, WebhookPath, ""))
	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, "/healthz", ""))
	assert.Equal(t, fiber.StatusNotFound, status(t, app, fiber.MethodGet, "/admin/api/stats", ""))
	assert.Equal(t, fiber.StatusNotFound, status(t, app, fiber.MethodGet, "/metrics", ""))
}

func TestInstallRouter_AdminEnabled(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newTestApp(t, config.Admin{User: "ops", PasswordHash: string(hash)})

	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, fiber.MethodGet, "/admin/api/stats", ""))
	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, "/admin/api/stats", "ops:pw"))
	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, "/admin/api/deliveries", "ops:pw"))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, fiber.MethodGet, "/metrics", ""))

	// The webhook stays open to the provider.
	assert.Equal(t, fiber.StatusOK, status(t, app, fiber.MethodGet, WebhookPath, ""))
}
