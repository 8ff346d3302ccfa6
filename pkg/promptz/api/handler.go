package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Handler serves the mutation endpoints of every registered kind.
type Handler struct {
	service  promptz.Service
	registry *promptz.Registry
	logger   *slog.Logger
	auth     *Authenticator
	limiter  *Limiter
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger for the handler
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithAuthenticator verifies bearer tokens on every route
func WithAuthenticator(auth *Authenticator) HandlerOption {
	return func(h *Handler) {
		h.auth = auth
	}
}

// WithCounterLimiter rate limits the anonymous copy and download routes per client IP
func WithCounterLimiter(limiter *Limiter) HandlerOption {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

// NewHandler creates a new handler
func NewHandler(service promptz.Service, registry *promptz.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:  service,
		registry: registry,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = promptz.DefaultRegistry()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Routes returns the routes for all kinds
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.auth != nil {
		r.Use(h.auth.Verifier())
	}

	r.Route("/{kind}", func(r chi.Router) {
		r.Post("/", h.Save)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(RateLimitMiddleware(h.limiter, ClientIP))
			}
			r.Post("/{id}/copy", h.Copy)
			r.Post("/{id}/download", h.Download)
		})
	})

	return r
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (promptz.Kind, bool) {
	kind, err := h.registry.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return promptz.Kind{}, false
	}
	return kind, true
}

// caller returns the authenticated identity or writes 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := Caller(r.Context())
	if caller == "" {
		h.writeError(w, r, ErrMissingIdentity)
		return "", false
	}
	return caller, true
}

// Save creates an entity, or updates it when the body carries an id
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req promptz.SaveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, invalid("malformed body: %v", err))
		return
	}
	h.save(w, r, kind, caller, req)
}

// Update replaces the mutable fields of the entity in the path
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req promptz.SaveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, invalid("malformed body: %v", err))
		return
	}

	id := chi.URLParam(r, "id")
	if req.ID != "" && req.ID != id {
		h.writeError(w, r, invalid("body id %q does not match path id %q", req.ID, id))
		return
	}
	req.ID = id
	h.save(w, r, kind, caller, req)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, kind promptz.Kind, caller string, req promptz.SaveRequest) {
	if err := Validate(kind, req); err != nil {
		if req.IsUpdate() {
			if denied := h.ownerCheck(r, kind, caller, req.ID); denied != nil {
				h.writeError(w, r, denied)
				return
			}
		}
		h.writeError(w, r, err)
		return
	}

	entity, err := h.service.Save(r.Context(), kind, caller, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !req.IsUpdate() {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, entity)
}

// ownerCheck reports Unauthorized unless caller owns the stored entity. A
// missing entity is reported the same way as a foreign one.
func (h *Handler) ownerCheck(r *http.Request, kind promptz.Kind, caller, id string) error {
	entity, err := h.service.Get(r.Context(), kind, id)
	switch {
	case errors.Is(err, promptz.ErrNotFound):
	case err != nil:
		return err
	case entity.Owner == caller:
		return nil
	}
	return &promptz.MutationError{Kind: kind.Name, ID: id, Op: "update", Err: promptz.ErrUnauthorized}
}

// Delete removes an entity owned by the caller and returns its last state
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	entity, err := h.service.Delete(r.Context(), kind, caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, entity)
}

// Copy increments the copy counter
func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	entity, err := h.service.Copy(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, entity)
}

// Download increments the download counter
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	entity, err := h.service.Download(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, entity)
}

// Get returns a single entity
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	entity, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, entity)
}
