package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
	"nodelock/internal/middleware"
	"nodelock/internal/security"
	ws "nodelock/internal/websocket"
	api "nodelock/pkg/contracts/api/v1"
	"nodelock/pkg/contracts/domain"
	"nodelock/pkg/contracts/events"
)

// Authorizer is the part of the license engine the bridge drives
type Authorizer interface {
	Check(ctx context.Context) (license.Verdict, error)
	Commit(ctx context.Context, code string) (license.LicenseRecord, error)
	Reauthorize(ctx context.Context) error
	CurrentMachineCode(ctx context.Context) license.MachineCode
	Capability() license.Capability
	StoreLocation() string
}

// Inspector exposes the fingerprint inputs for diagnostics
type Inspector interface {
	Components(ctx context.Context) ([]security.Component, bool)
}

// LicenseHandlerConfig wires a LicenseHandler. CommitLimiter is optional.
type LicenseHandlerConfig struct {
	Engine        Authorizer
	Inspector     Inspector
	Hub           *ws.Hub
	Errors        *apperrors.ErrorHandler
	Validator     *middleware.Validator
	CommitLimiter *middleware.RateLimiter
	Timeout       time.Duration
	Version       string
	Logger        *slog.Logger
}

// LicenseHandler serves the authorization API consumed by the GUI shell
type LicenseHandler struct {
	engine    Authorizer
	inspector Inspector
	hub       *ws.Hub
	errors    *apperrors.ErrorHandler
	validator *middleware.Validator
	limiter   *middleware.RateLimiter
	timeout   time.Duration
	version   string
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(cfg LicenseHandlerConfig) *LicenseHandler {
	if cfg.Logger == nil {
		cfg.Logger = infrastructure.GetLogger()
	}
	if cfg.Errors == nil {
		cfg.Errors = apperrors.NewErrorHandler(cfg.Logger, false)
	}
	if cfg.Validator == nil {
		cfg.Validator = middleware.NewValidator()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	h := &LicenseHandler{
		engine:    cfg.Engine,
		inspector: cfg.Inspector,
		hub:       cfg.Hub,
		errors:    cfg.Errors,
		validator: cfg.Validator,
		limiter:   cfg.CommitLimiter,
		timeout:   cfg.Timeout,
		version:   cfg.Version,
		logger:    cfg.Logger.With(slog.String("handler", "license")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
		Error:           h.upgradeError,
	}
	return h
}

// Routes returns a chi router for the license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(h.timeout))

		r.Get("/status", h.GetStatus)
		r.Get("/machine-code", h.GetMachineCode)
		r.Get("/debug", h.GetDebugInfo)
		r.Delete("/authorization", h.Reauthorize)

		if h.limiter != nil {
			r.With(h.limiter.Handler).Post("/commit", h.Commit)
		} else {
			r.Post("/commit", h.Commit)
		}
	})

	// The stream outlives any request timeout
	r.Get("/events", h.Events)

	return r
}

// GetStatus handles GET /api/license/status. An unauthorized installation
// is a normal 200 response; only storage failures are errors.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	v, err := h.engine.Check(ctx)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, StatusFromVerdict(v))
}

// GetMachineCode handles GET /api/license/machine-code
func (h *LicenseHandler) GetMachineCode(w http.ResponseWriter, r *http.Request) {
	mc := h.engine.CurrentMachineCode(r.Context())

	render.JSON(w, r, domain.MachineCodeInfo{
		MachineCode: string(mc),
		Degraded:    mc == license.DegradedMachineCode,
	})
}

// Commit handles POST /api/license/commit. The code is stored without
// verification and the response carries the follow-up verdict.
func (h *LicenseHandler) Commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CommitLicenseRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	record, err := h.engine.Commit(ctx, req.LicenseCode)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	v, err := h.engine.Check(ctx)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	infrastructure.AddSpanEvent(ctx, "license.commit.checked", map[string]interface{}{
		"authorized": v.Authorized,
		"reason":     string(v.Reason),
	})

	h.logger.InfoContext(ctx, "license code committed via bridge",
		slog.String("request_id", chimw.GetReqID(ctx)),
		slog.Bool("authorized", v.Authorized),
		slog.String("reason", string(v.Reason)))

	render.JSON(w, r, domain.CommitResult{
		Saved:       true,
		LicenseCode: string(record.LicenseCode),
		MachineCode: string(record.MachineCode),
		SavedAt:     record.IssuedAt,
		Status:      StatusFromVerdict(v),
	})
}

// Reauthorize handles DELETE /api/license/authorization
func (h *LicenseHandler) Reauthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.engine.Reauthorize(ctx); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	v, err := h.engine.Check(ctx)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, StatusFromVerdict(v))
}

// GetDebugInfo handles GET /api/license/debug
func (h *LicenseHandler) GetDebugInfo(w http.ResponseWriter, r *http.Request) {
	info := domain.DebugInfo{
		MachineCode:   string(license.DegradedMachineCode),
		Degraded:      true,
		Components:    []domain.FingerprintComponent{},
		StoreLocation: h.engine.StoreLocation(),
		Capability:    string(h.engine.Capability()),
		Version:       h.version,
	}

	if h.inspector != nil {
		components, ok := h.inspector.Components(r.Context())
		if ok {
			info.Degraded = false
			info.MachineCode = security.DeriveMachineCode(components)
		}
		for _, c := range components {
			info.Components = append(info.Components, domain.FingerprintComponent{
				Tag:    c.Tag,
				Value:  c.Value,
				Source: c.Source,
			})
		}
	}

	render.JSON(w, r, info)
}

// Events handles GET /api/license/events. The current verdict is sent first,
// then one verdict after every commit or reauthorization.
func (h *LicenseHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := chimw.GetReqID(ctx)

	if h.hub == nil {
		h.errors.NotFound(w, r)
		return
	}

	v, err := h.engine.Check(ctx)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "WebSocket upgrade failed",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, ws.WrapConn(conn), reqID, h.logger)
	if payload, err := ws.EncodeMessage(events.MessageTypeVerdict, StatusFromVerdict(v), reqID); err == nil {
		client.Enqueue(payload)
	}

	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	h.logger.InfoContext(ctx, "event stream client connected",
		slog.String("request_id", reqID),
		slog.String("client_id", client.ID()))

	go client.Serve()
}

// checkOrigin admits same-host pages, local pages, and clients that send no
// Origin at all (embedded webviews, file://).
func (h *LicenseHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}

	h.logger.WarnContext(r.Context(), "WebSocket origin rejected", slog.String("origin", origin))
	return false
}

func (h *LicenseHandler) upgradeError(w http.ResponseWriter, r *http.Request, status int, reason error) {
	problem := apperrors.NewProblemDetails(
		status,
		apperrors.TypeWebSocketUpgrade,
		"WebSocket Upgrade Failed",
		reason.Error(),
		r.URL.Path,
	).WithExtension("trace_id", chimw.GetReqID(r.Context()))

	render.Render(w, r, problem)
}
