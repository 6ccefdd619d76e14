// Package admin exposes the introspection HTTP surface spec.md's
// Transport Facade GetInfo query is meant to be read through: a session
// registry plus Prometheus metrics, adapted from the teacher's
// internal/admin/http.go domain-registration API and
// internal/proxy/server.go's H1/H2 server constructor.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"

	"github.com/dalbodeule/sip-dtls-transport/internal/logging"
	"github.com/dalbodeule/sip-dtls-transport/internal/observability"
	"github.com/dalbodeule/sip-dtls-transport/internal/transport"
)

// SessionRegistry is the read side a Handler queries; Register/
// Unregister are called by the owning process as facades come and go.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*transport.Facade
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*transport.Facade)}
}

func (r *SessionRegistry) Register(id string, f *transport.Facade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*transport.Facade)
	}
	r.sessions[id] = f
}

func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *SessionRegistry) snapshot() map[string]transport.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]transport.Info, len(r.sessions))
	for id, f := range r.sessions {
		out[id] = f.GetInfo()
	}
	return out
}

// Handler serves /api/v1/admin/sessions introspection and /metrics.
type Handler struct {
	Logger      logging.Logger
	AdminAPIKey string
	Registry    *SessionRegistry
}

func NewHandler(logger logging.Logger, adminAPIKey string, registry *SessionRegistry) *Handler {
	return &Handler{
		Logger:      logger.With(logging.Fields{"component": "admin_api"}),
		AdminAPIKey: strings.TrimSpace(adminAPIKey),
		Registry:    registry,
	}
}

// RegisterRoutes installs the admin API and metrics routes onto mux.
//   - GET /api/v1/admin/sessions       list all session snapshots
//   - GET /api/v1/admin/sessions/one   one session snapshot (?id=)
//   - GET /metrics                     Prometheus exposition (unauthenticated)
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/v1/admin/sessions", h.authMiddleware(http.HandlerFunc(h.handleSessionsList)))
	mux.Handle("/api/v1/admin/sessions/one", h.authMiddleware(http.HandlerFunc(h.handleSessionOne)))
	mux.Handle("/metrics", promhttp.Handler())
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !h.authenticate(r) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "unauthorized",
			})
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, "401").Inc()
			return
		}
		next.ServeHTTP(w, r)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, "200").Inc()
		observability.HTTPRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

func (h *Handler) authenticate(r *http.Request) bool {
	if h.AdminAPIKey == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	return token == h.AdminAPIKey
}

type sessionsListResponse struct {
	Success  bool                        `json:"success"`
	Sessions map[string]sessionInfoJSON `json:"sessions"`
}

type sessionInfoJSON struct {
	Established  bool   `json:"established"`
	ProtocolID   string `json:"protocol_id"`
	LocalAddr    string `json:"local_addr"`
	RemoteAddr   string `json:"remote_addr"`
	CipherSuite  string `json:"cipher_suite,omitempty"`
	VerifyStatus string `json:"verify_status,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

func toSessionJSON(info transport.Info) sessionInfoJSON {
	j := sessionInfoJSON{
		Established:  info.Established,
		ProtocolID:   info.ProtocolID,
		LocalAddr:    info.LocalAddr,
		RemoteAddr:   info.RemoteAddr,
		CipherSuite:  info.CipherSuite,
		VerifyStatus: info.VerifyStatus,
	}
	if info.LastNativeErr != nil {
		j.LastError = info.LastNativeErr.Error()
	}
	return j
}

func (h *Handler) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeMethodNotAllowed(w)
		return
	}
	snap := h.Registry.snapshot()
	out := make(map[string]sessionInfoJSON, len(snap))
	for id, info := range snap {
		out[id] = toSessionJSON(info)
	}
	h.writeJSON(w, http.StatusOK, sessionsListResponse{Success: true, Sessions: out})
}

func (h *Handler) handleSessionOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeMethodNotAllowed(w)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "id is required"})
		return
	}
	snap := h.Registry.snapshot()
	info, ok := snap[id]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "session not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": toSessionJSON(info)})
}

func (h *Handler) writeMethodNotAllowed(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"success": false,
		"error":   "method not allowed",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to write json response", logging.Fields{"error": err.Error()})
	}
}

// NewHTTPServer builds the H1/H2 admin server, unchanged from the
// teacher's proxy.NewHTTPServer.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	http2.ConfigureServer(srv, &http2.Server{})
	return srv
}
