package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthController(t *testing.T) {
	tests := []struct {
		name   string
		cache  error
		status string
	}{
		{"all ok", nil, "ok"},
		{"cache down", errors.New("connection refused"), "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthController(
				HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
				HealthCheck{Name: "cache", Check: func(context.Context) error { return tt.cache }},
			)
			app := fiber.New()
			app.Get("/healthz", hc.HandleHealth)

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			var out struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, "ok", out.Checks["database"])
		})
	}
}
