// metrics.go — Prometheus HTTP метрики Onboarding Module.
// Регистрирует метрики: om_http_requests_total, om_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Onboarding Module
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "om_http_requests_total",
			Help: "Общее количество HTTP-запросов к Onboarding Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "om_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Onboarding Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет role-сегменты пути на {role} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/onboarding/steps/creative/close → /api/v1/onboarding/steps/{role}/close
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/session/events",
		"/api/v1/onboarding/state", "/api/v1/onboarding/start",
		"/api/v1/onboarding/back", "/api/v1/onboarding/reset",
		"/api/v1/invites/pending", "/api/v1/invites/resolve",
		"/api/v1/bookings/pending",
		"/api/v1/notices",
		"/api/v1/auth/signout":
		return path
	}

	// Динамические пути с ролью
	const stepsPrefix = "/api/v1/onboarding/steps/"
	if strings.HasPrefix(path, stepsPrefix) {
		rest := path[len(stepsPrefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return stepsPrefix + "{role}" + rest[idx:]
		}
		return stepsPrefix + "{role}"
	}

	return path
}
