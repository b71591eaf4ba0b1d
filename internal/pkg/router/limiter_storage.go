package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

// limiterDatabase keeps rate limiter keys apart from the queue and counters
// in database 0.
const limiterDatabase = 2

// NewLimiterStorage returns a Redis backed fiber.Storage so rate limits hold
// across service instances. The storage pings Redis on creation and panics
// when it is unreachable, so callers check the cache connection first.
func NewLimiterStorage(cfg config.Cache) fiber.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}

	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
