package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/infrastructure"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID middleware assigns each request an id, honouring one supplied by
// the caller. The id is stored where chi's GetReqID finds it and becomes the
// trace_id of log records. This should be the FIRST middleware in the chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, requestID)
		ctx = infrastructure.WithTraceID(ctx, requestID)

		// If there's an active span, use its trace ID instead
		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context, falling back to the
// trace ID.
func GetRequestID(ctx context.Context) string {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return reqID
	}
	return infrastructure.GetTraceID(ctx)
}

// RealIP extracts the real client IP using Chi's implementation
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}

// LoopbackOnly rejects requests whose peer is not a loopback address. It must
// run before RealIP, which rewrites RemoteAddr from forwarding headers.
func LoopbackOnly(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isLoopback(r.RemoteAddr) {
				next.ServeHTTP(w, r)
				return
			}

			logger.WarnContext(r.Context(), "rejected non-loopback request",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path))

			render.Render(w, r, apperrors.NewProblemDetails(
				http.StatusForbidden,
				"/errors/forbidden",
				"Forbidden",
				"The license bridge only accepts local connections",
				r.URL.Path,
			))
		})
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RateLimiter applies one shared token bucket to the routes it wraps
type RateLimiter struct {
	limiter   *rate.Limiter
	perMinute float64
	errors    *apperrors.ErrorHandler
}

// NewRateLimiter allows perMinute requests per minute with the given burst
func NewRateLimiter(perMinute float64, burst int, errs *apperrors.ErrorHandler) *RateLimiter {
	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(perMinute/60), burst),
		perMinute: perMinute,
		errors:    errs,
	}
}

// Handler implements rate limiting middleware
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			rl.errors.RateLimited(w, r, rl.retryAfter())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the time for one token to refill, in whole seconds
func (rl *RateLimiter) retryAfter() int {
	if rl.perMinute <= 0 {
		return int(time.Minute / time.Second)
	}
	return int(math.Ceil(60 / rl.perMinute))
}

// SecurityHeaders adds security-related headers. Verdicts must never be
// served from a cache.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
