package middleware

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

const (
	// KeyAdminUser holds the authenticated admin name in c.Locals.
	KeyAdminUser = "admin_user"
	adminRealm   = "ledgersync admin"
)

// AdminAuth protects operator endpoints with HTTP basic auth. The password is
// compared against a bcrypt hash, never stored in clear text.
func AdminAuth(cfg config.Admin) fiber.Handler {
	user := []byte(cfg.User)
	hash := []byte(cfg.PasswordHash)

	return basicauth.New(basicauth.Config{
		Realm: adminRealm,
		Authorizer: func(name, password string) bool {
			if !cfg.Enabled() {
				return false
			}
			if subtle.ConstantTimeCompare([]byte(name), user) != 1 {
				return false
			}
			if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
				if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
					log.Warnf("[Admin] password hash check failed: %v", err)
				}
				return false
			}
			return true
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="`+adminRealm+`"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "admin credentials required",
			})
		},
		ContextUsername: KeyAdminUser,
	})
}

// AdminUser returns the name set by AdminAuth, or "" outside admin routes.
func AdminUser(c *fiber.Ctx) string {
	if v, ok := c.Locals(KeyAdminUser).(string); ok {
		return v
	}
	return ""
}
