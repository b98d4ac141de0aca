package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
	"github.com/wisbric/urumi-provisioner/internal/telemetry"
)

// RateLimiter is the subset of ratelimit.Limiter the global write limiter
// needs; declared here so this package does not import internal/ratelimit.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// GlobalWriteRateLimit caps non-GET, non-health traffic per client IP (spec
// §6's write budget, on top of the admission surface's per-route limits).
func GlobalWriteRateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			ip := requestIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Error("global write rate limit check failed", "error", err)
				RespondErr(w, apierr.Internal(err))
				return
			}
			if !allowed {
				RespondErr(w, apierr.RateLimited("write rate limit exceeded, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID assigns (or reuses) a request correlation id, storing it in the
// context and echoing it back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id stashed by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// Logger logs one structured line per request: method, path, status, duration
// and request id.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFromContext(r.Context()),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

// Metrics records request duration against telemetry.HTTPRequestDuration,
// labeled by the chi route pattern so cardinality stays bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		telemetry.HTTPRequestDuration.WithLabelValues(
			r.Method, route, statusClass(sw.status),
		).Observe(time.Since(start).Seconds())
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
