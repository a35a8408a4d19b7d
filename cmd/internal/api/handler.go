// Package api serves the HTTP control surface: key lookups and admin
// mutations for external tooling.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/volskaya/norman/cmd/internal/gate"
	"github.com/volskaya/norman/cmd/internal/member"
)

// Admin is the subset of the moderation service the control surface drives.
type Admin interface {
	AddMember(ctx context.Context, target string, approve bool) (member.Record, error)
	InvalidateMember(ctx context.Context, id string) error
	Lookup(ctx context.Context, id string) (member.Record, error)
	LookupByName(ctx context.Context, name string) (member.Record, error)
}

// Observer receives one call per answered request.
type Observer interface {
	ObserveHTTP(route string, status int)
}

// Handler wires the /user routes to an Admin.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	admin  Admin
	auth   *authenticator
	limits *clientLimits
	obs    Observer
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithObserver reports per-route status codes.
func WithObserver(obs Observer) HandlerOption {
	return func(h *Handler) {
		if h == nil || obs == nil {
			return
		}
		h.obs = obs
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, admin Admin, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if admin == nil {
		return nil, errors.New("api: nil admin")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		log:    log,
		cfg:    cfg,
		admin:  admin,
		auth:   newAuthenticator(cfg.Token, cfg.Secret),
		limits: newClientLimits(cfg.RatePerSecond, cfg.RateBurst, cfg.ClientIdle),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// AuthEnabled reports whether callers must present the shared secret.
func (h *Handler) AuthEnabled() bool { return h.auth.enabled() }

// Authorize reports whether r may use protected endpoints. The event feed
// shares it.
func (h *Handler) Authorize(r *http.Request) bool { return h.auth.allow(r) }

// Register wires the control routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("GET /user/{id}", h.route("user.get", h.handleGet))
	mux.Handle("GET /user/id/{id}", h.route("user.get", h.handleGet))
	mux.Handle("GET /user/name/{name}", h.route("user.name", h.handleByName))
	mux.Handle("GET /user/name/{name}/{discriminator}", h.route("user.name", h.handleByName))
	mux.Handle("GET /user/add/{id}", h.route("user.add", h.handleAdd(false)))
	mux.Handle("GET /user/approve/{id}", h.route("user.approve", h.handleAdd(true)))
	mux.Handle("GET /user/remove/{id}", h.route("user.remove", h.handleRemove))
}

// route applies rate limiting, then authentication, and reports the final
// status under name.
func (h *Handler) route(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if h.obs != nil {
				h.obs.ObserveHTTP(name, sw.status)
			}
		}()

		ip := clientIP(r, h.cfg.TrustProxy)
		if ok, retry := h.limits.allow(ip); !ok {
			h.log.Warn("api.rate_limited", "route", name, "ip", ip)
			writeRateLimited(sw, retry)
			return
		}
		if !h.auth.allow(r) {
			h.log.Warn("api.unauthorized", "route", name, "ip", ip)
			writeError(sw, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next(sw, r)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.admin.Lookup(r.Context(), id)
	if err != nil {
		h.writeAdminError(w, "user.get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "name is required")
		return
	}
	if d := strings.TrimSpace(r.PathValue("discriminator")); d != "" && d != "0" {
		name += "#" + d
	}
	rec, err := h.admin.LookupByName(r.Context(), name)
	if err != nil {
		h.writeAdminError(w, "user.name", name, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleAdd(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := h.admin.AddMember(r.Context(), id, approve)
		if err != nil && !errors.Is(err, gate.ErrAlreadyApproved) {
			h.writeAdminError(w, "user.add", id, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.admin.InvalidateMember(r.Context(), id); err != nil {
		h.writeAdminError(w, "user.remove", id, err)
		return
	}
	writeOK(w)
}

func (h *Handler) writeAdminError(w http.ResponseWriter, op, target string, err error) {
	switch {
	case member.IsNotFound(err), errors.Is(err, gate.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "member not found")
	case member.IsAmbiguous(err):
		writeError(w, http.StatusConflict, "ambiguous_name", "name matches more than one member")
	case member.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid member reference")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	default:
		h.log.Error("api."+op+".fail", "target", target, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// pathID reads {id} and rejects anything that is not a platform id.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validID(id) {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be numeric")
		return "", false
	}
	return id, true
}

func validID(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
