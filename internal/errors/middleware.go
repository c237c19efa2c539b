package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// maxLoggedBody bounds how much of a request body is kept for the access log
const maxLoggedBody = 512

// redactedBodyFields never appear in a logged request body
var redactedBodyFields = []string{"license_code", "licenseCode", "secret", "store_key"}

// ErrorMiddleware recovers handler panics and writes one access log record per
// request. Failed requests also log their (redacted) JSON body.
type ErrorMiddleware struct {
	handler *ErrorHandler
	logger  *slog.Logger
}

func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		handler: handler,
		logger:  logger.With(slog.String("component", "access_log")),
	}
}

// capture keeps the first maxLoggedBody bytes the handler reads
type capture struct {
	buf bytes.Buffer
}

func (c *capture) Write(p []byte) (int, error) {
	if room := maxLoggedBody - c.buf.Len(); room > 0 {
		c.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

type teeBody struct {
	io.Reader
	io.Closer
}

func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var body capture
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = teeBody{Reader: io.TeeReader(r.Body, &body), Closer: r.Body}
		}

		defer func() {
			if rec := recover(); rec != nil {
				m.handler.HandlePanic(ww, r, rec)
			}
		}()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.Int("bytes", ww.BytesWritten()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= http.StatusBadRequest && body.buf.Len() > 0 {
			attrs = append(attrs, slog.String("request_body", sanitizeRequestBody(body.buf.String())))
		}

		m.logger.LogAttrs(r.Context(), levelForStatus(status), "http request", attrs...)
	})
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// sanitizeRequestBody redacts credentials from a JSON object. Anything that
// does not parse as one is dropped entirely.
func sanitizeRequestBody(body string) string {
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return "[non-JSON body omitted]"
	}
	for _, field := range redactedBodyFields {
		if _, ok := data[field]; ok {
			data[field] = "[REDACTED]"
		}
	}
	out, _ := json.Marshal(data)
	return string(out)
}
