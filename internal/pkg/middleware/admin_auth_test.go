package middleware

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

func newAdminApp(t *testing.T, cfg config.Admin) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/admin", AdminAuth(cfg), func(c *fiber.Ctx) error {
		return c.SendString(AdminUser(c))
	})
	return app
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newAdminApp(t, config.Admin{User: "ops", PasswordHash: string(hash)})

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"no header", "", fiber.StatusUnauthorized},
		{"wrong password", basic("ops", "nope"), fiber.StatusUnauthorized},
		{"wrong user", basic("root", "s3cret"), fiber.StatusUnauthorized},
		{"valid", basic("ops", "s3cret"), fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminAuth_DisabledRejectsEverything(t *testing.T) {
	app := newAdminApp(t, config.Admin{})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", basic("", ""))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
