package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	unmatchedRoute = "unmatched"
	anonymousRole  = "anonymous"
)

var (
	// API requests partitioned by route template, status class and caller role
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mspace_api_requests_total",
			Help: "Total number of dashboard API requests processed",
		},
		[]string{"method", "route", "status_class", "role"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mspace_api_request_duration_seconds",
			Help:    "Dashboard API latencies in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mspace_api_inflight_requests",
			Help: "Number of dashboard API requests currently being served",
		},
	)
)

// Metrics records request counts and latencies labelled by the matched route template.
// Requests that match no route share one label so scanners cannot grow the series count.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		err := c.Next()

		route := routeLabel(c)
		apiRequestsTotal.WithLabelValues(c.Method(), route, statusClass(c.Response().StatusCode()), roleLabel(c)).Inc()
		apiRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

func routeLabel(c fiber.Ctx) string {
	r := c.Route()
	if r == nil || r.Path == "" || (r.Path == "/" && c.Path() != "/") {
		return unmatchedRoute
	}
	return r.Path
}

// statusClass folds a status code into 2xx, 4xx and so on
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// roleLabel reads the role the auth middleware stored; it is only set once Next has run
func roleLabel(c fiber.Ctx) string {
	if role, ok := c.Locals(LocalUserRole).(string); ok && role != "" {
		return role
	}
	return anonymousRole
}
