package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"nodelock/pkg/contracts"
	"nodelock/pkg/contracts/domain"
)

// ClientCounter reports connected event stream clients
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	clients ClientCounter
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. clients may be nil.
func NewHealthHandler(clients ClientCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		clients: clients,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz. It does not touch the license store.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := domain.HealthStatus{
		Status:    "ok",
		Version:   contracts.Version,
		Timestamp: time.Now().UTC(),
	}
	if h.clients != nil {
		status.Clients = h.clients.ClientCount()
	}
	render.JSON(w, r, status)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
