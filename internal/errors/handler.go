package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem type URIs rendered by the bridge
const (
	TypeInvalidInput     = "/errors/invalid-input"
	TypePersistence      = "/errors/persistence"
	TypeRecordCorrupted  = "/errors/record-corrupted"
	TypeNotFound         = "/errors/not-found"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
	TypeRateLimit        = "/errors/rate-limit"
	TypeTimeout          = "/errors/timeout"
	TypeInternal         = "/errors/internal"
	TypeWebSocketUpgrade = "/errors/websocket/upgrade-failed"
)

// ErrorHandler renders failures as RFC 7807 problem documents. With debug
// set, 5xx problems carry a goroutine stack; the bridge never enables it.
type ErrorHandler struct {
	logger *slog.Logger
	debug  bool
}

func NewErrorHandler(logger *slog.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{
		logger: logger.With(slog.String("component", "error_handler")),
		debug:  debug,
	}
}

// write stamps the request id on problem and renders it
func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, problem *ProblemDetails) {
	problem.WithExtension("trace_id", middleware.GetReqID(r.Context()))
	render.Render(w, r, problem)
}

// HandleError logs err and responds with the matching problem. A nil err
// writes nothing.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.Any("error", logValue(err)),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", problem.Status))

	if h.debug {
		problem.WithExtension("stack", string(debug.Stack()))
	}
	h.write(w, r, problem)
}

// ErrorToProblem maps err to a problem. Cancellation and deadlines become
// 504 regardless of how deeply they are wrapped.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", r.URL.Path)
	}
	return ProblemFromError(err, r.URL.Path)
}

// RateLimited responds 429. retryAfter is clamped to at least one second.
func (h *ErrorHandler) RateLimited(w http.ResponseWriter, r *http.Request, retryAfter int) {
	retryAfter = max(retryAfter, 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	h.logger.WarnContext(r.Context(), "license code submissions throttled",
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("retry_after", retryAfter))

	h.write(w, r, NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit, "Rate Limit Exceeded",
		"Too many license code submissions. Please try again later.", r.URL.Path).
		WithExtension("retry_after", retryAfter))
}

// HandlePanic responds 500 for a recovered panic. The panic value is logged
// and only rendered in debug mode.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered any) {
	stack := string(debug.Stack())
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", stack))

	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred", r.URL.Path)
	if h.debug {
		problem.WithExtension("panic", recovered).WithExtension("stack", stack)
	}
	h.write(w, r, problem)
}

func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path))
}

func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethodNotAllowed, "Method Not Allowed",
		"Method "+r.Method+" is not allowed for this endpoint", r.URL.Path))
}

// logValue keeps an AppError structured in logs
func logValue(err error) any {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr == err {
		return appErr
	}
	return err.Error()
}
