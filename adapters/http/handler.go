// Package http serves a read-mostly introspection API over the current
// role manifest.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/manifest"
	"github.com/artpar/traits/core/role"
	"github.com/artpar/traits/ports"
)

// WorldSource returns the world to serve. It may return nil while no
// manifest has been loaded.
type WorldSource interface {
	World() *manifest.World
}

// RouterConfig holds optional router configuration.
type RouterConfig struct {
	// Store serves /applications. Nil disables the endpoint.
	Store ports.ApplicationStore

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
}

// ErrorResponseBody is the error envelope.
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoleResponse describes a built role.
type RoleResponse struct {
	Name      string   `json:"name"`
	Provides  []string `json:"provides"`
	Requires  []string `json:"requires"`
	Composes  []string `json:"composes"`
	Modifies  []string `json:"modifies"`
	Consumers []string `json:"consumers"`
}

// ClassResponse describes a declared class or application result.
type ClassResponse struct {
	Name    string   `json:"name"`
	Parent  string   `json:"parent,omitempty"`
	Methods []string `json:"methods"`
	Roles   []string `json:"roles"`
}

// DoesResponse answers a role-satisfaction query.
type DoesResponse struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
	Does    bool   `json:"does"`
}

// InvokeRequest is the optional body of an invocation.
type InvokeRequest struct {
	Args []any `json:"args"`
}

// InvokeResponse reports an invocation and its stub trace.
type InvokeResponse struct {
	Class  string   `json:"class"`
	Method string   `json:"method"`
	Result any      `json:"result"`
	Trace  []string `json:"trace"`
	Error  string   `json:"error,omitempty"`
}

// ResultResponse is one manifest build entry.
type ResultResponse struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ApplicationResponse is one audit record.
type ApplicationResponse struct {
	ID       string    `json:"id"`
	Base     string    `json:"base"`
	Result   string    `json:"result"`
	Roles    []string  `json:"roles"`
	Applied  []string  `json:"applied"`
	Modified []string  `json:"modified"`
	At       time.Time `json:"at"`
}

// Handler serves the introspection endpoints.
type Handler struct {
	worlds WorldSource
	store  ports.ApplicationStore
	logger zerolog.Logger
}

// NewHandler creates a new introspection handler.
func NewHandler(worlds WorldSource, store ports.ApplicationStore, logger zerolog.Logger) *Handler {
	return &Handler{worlds: worlds, store: store, logger: logger}
}

// NewRouter creates the HTTP router.
func NewRouter(worlds WorldSource, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	h := NewHandler(worlds, cfg.Store, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Health)

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireWorld)

		r.Get("/manifest", h.Manifest)
		r.Get("/roles", h.ListRoles)
		r.Get("/roles/{name}", h.GetRole)
		r.Get("/classes", h.ListClasses)
		r.Get("/does", h.Does)
		r.Post("/classes/{name}/methods/{method}", h.Invoke)
	})

	r.Get("/applications", h.ListApplications)

	return r
}

// Health reports whether a manifest is loaded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.worlds.World() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Manifest lists the build results of the current manifest.
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	out := make([]ResultResponse, 0, len(world.Results))
	for _, res := range world.Results {
		item := ResultResponse{Kind: res.Kind, Name: res.Name, OK: res.OK(), Detail: res.Detail}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// ListRoles lists every built role.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	out := make([]RoleResponse, 0)
	for _, name := range world.RoleNames() {
		rl, _ := world.Role(name)
		out = append(out, describeRole(world, rl))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRole describes one role.
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	name := chi.URLParam(r, "name")
	rl, ok := world.Role(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "role "+strconv.Quote(name)+" not found")
		return
	}
	writeJSON(w, http.StatusOK, describeRole(world, rl))
}

// ListClasses lists declared classes and application results.
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	out := make([]ClassResponse, 0)
	for _, name := range world.ClassNames() {
		c, _ := world.Class(name)
		item := ClassResponse{
			Name:    name,
			Methods: c.MethodNames(),
			Roles:   roleNames(world.Registry.RolesOf(c)),
		}
		if p := c.Parent(); p != nil {
			item.Parent = p.Name()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// Does answers whether subject, a class or role name, does role.
func (h *Handler) Does(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	subject := r.URL.Query().Get("subject")
	roleName := r.URL.Query().Get("role")
	if subject == "" || roleName == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "subject and role are required")
		return
	}

	rl, ok := world.Role(roleName)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "role "+strconv.Quote(roleName)+" not found")
		return
	}

	var candidate any
	if c, ok := world.Class(subject); ok {
		candidate = c
	} else if sr, ok := world.Role(subject); ok {
		candidate = sr
	} else {
		writeError(w, http.StatusNotFound, "not_found", "subject "+strconv.Quote(subject)+" not found")
		return
	}

	writeJSON(w, http.StatusOK, DoesResponse{
		Subject: subject,
		Role:    roleName,
		Does:    world.Registry.DoesRole(candidate, rl),
	})
}

// Invoke calls a method on a fresh instance and returns its trace.
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	world := h.worlds.World()
	className := chi.URLParam(r, "name")
	method := chi.URLParam(r, "method")

	var req InvokeRequest
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "read body: "+err.Error())
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
				return
			}
		}
	}

	result, trace, err := world.Invoke(className, method, req.Args...)
	switch {
	case errors.Is(err, manifest.ErrUnknown):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, class.ErrNoMethod):
		writeError(w, http.StatusNotFound, "no_method", err.Error())
		return
	}

	resp := InvokeResponse{
		Class:  className,
		Method: method,
		Result: result,
		Trace:  trace,
	}
	if resp.Trace == nil {
		resp.Trace = []string{}
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// ListApplications returns audit records, newest first, or the records
// for one role when ?role= is given.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "application audit is disabled")
		return
	}

	ctx := r.Context()
	var (
		records []ports.ApplicationRecord
		err     error
	)
	if roleName := r.URL.Query().Get("role"); roleName != "" {
		records, err = h.store.ByRole(ctx, roleName)
	} else {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "limit must be an integer")
				return
			}
			limit = n
		}
		records, err = h.store.List(ctx, limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("list applications failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list applications")
		return
	}

	out := make([]ApplicationResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, ApplicationResponse{
			ID:       rec.ID,
			Base:     rec.Base,
			Result:   rec.Result,
			Roles:    rec.Roles,
			Applied:  rec.Applied,
			Modified: rec.Modified,
			At:       rec.At,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) requireWorld(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.worlds.World() == nil {
			writeError(w, http.StatusServiceUnavailable, "not_loaded", "no manifest loaded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func describeRole(world *manifest.World, rl *role.Role) RoleResponse {
	var composes []string
	for _, sub := range rl.Applied() {
		if sub != rl {
			composes = append(composes, sub.String())
		}
	}

	var consumers []string
	for _, c := range world.Registry.Consumers(rl) {
		consumers = append(consumers, c.Name())
	}

	return RoleResponse{
		Name:      rl.String(),
		Provides:  nonNil(rl.ProvidedNames()),
		Requires:  nonNil(rl.Requires()),
		Composes:  nonNil(composes),
		Modifies:  nonNil(rl.Modifiers().Targets()),
		Consumers: nonNil(consumers),
	}
}

func roleNames(roles []*role.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponseBody{Error: ErrorDetail{Code: code, Message: message}})
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
