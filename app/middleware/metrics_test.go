package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/campaigns/:uuid", func(c fiber.Ctx) error {
		c.Locals(LocalUserRole, "metrics-test")
		return c.SendStatus(fiber.StatusOK)
	})

	templated := apiRequestsTotal.WithLabelValues(fiber.MethodGet, "/campaigns/:uuid", "2xx", "metrics-test")
	before := counterValue(t, templated)

	for _, id := range []string{"4f1c", "9a2b"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/campaigns/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, before+2, counterValue(t, templated))
	assert.Zero(t, counterValue(t, apiRequestsTotal.WithLabelValues(fiber.MethodGet, "/campaigns/4f1c", "2xx", "metrics-test")))
}

func TestMetricsUnknownPathsDoNotBecomeLabels(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/wp-login.php", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	assert.Zero(t, counterValue(t, apiRequestsTotal.WithLabelValues(fiber.MethodGet, "/wp-login.php", "4xx", anonymousRole)))
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{code: 200, want: "2xx"},
		{code: 202, want: "2xx"},
		{code: 412, want: "4xx"},
		{code: 502, want: "5xx"},
		{code: 0, want: "unknown"},
		{code: 600, want: "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code), tt.code)
	}
}
