package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsUsesRouteTemplate(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/api/v1/creators/:creator/tokens", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	labels := prometheus.Labels{"method": "GET", "route": "/api/v1/creators/:creator/tokens", "status": "200"}
	before := testutil.ToFloat64(httpRequestsTotal.With(labels))

	for _, creator := range []string{"0xa", "0xb", "0xc"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/creators/"+creator+"/tokens", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(httpRequestsTotal.With(labels)))
	assert.Zero(t, testutil.ToFloat64(httpInFlight))
}
