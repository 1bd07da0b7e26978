// Package httpapi exposes the gateway over HTTP. Four adapters share one
// dispatcher: the root JSON-RPC endpoint, the dedicated initialize/mcp paths,
// the SSE stream, and the legacy REST surface. Each adapter only normalizes
// its wire shape in and re-serializes the shared result out.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/authz"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/dispatch"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/logctx"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/sessions"
)

const (
	protocolVersionHeader = "Mcp-Protocol-Version"
	sessionIDHeader       = "X-MCP-Session-ID"
	lastEventIDHeader     = "Last-Event-ID"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

const heartbeatInterval = 30 * time.Second

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// WithLogger sets the slog logger. If not provided, slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithHeartbeatInterval overrides the SSE heartbeat cadence, mainly for
// tests.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *newConfig) { c.heartbeatInterval = d }
}

// Handler is the HTTP surface of the gateway.
type Handler struct {
	log       *slog.Logger
	disp      *dispatch.Dispatcher
	store     sessions.Store
	authorize authz.Authorizer
	heartbeat time.Duration

	chain http.Handler
}

// New wires the adapters over the shared dispatcher, session store and
// authorizer.
func New(disp *dispatch.Dispatcher, store sessions.Store, authorizer authz.Authorizer, opts ...Option) *Handler {
	cfg := &newConfig{logger: slog.Default(), heartbeatInterval: heartbeatInterval}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:       slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		disp:      disp,
		store:     store,
		authorize: authorizer,
		heartbeat: cfg.heartbeatInterval,
	}

	mux := http.NewServeMux()

	// Root/primary adapter: raw JSON-RPC at exactly "/". The {$} anchor
	// keeps the pattern from swallowing every unmatched POST.
	mux.HandleFunc("POST /{$}", h.handleRootRPC)

	// Standard adapter: dedicated handshake and protocol paths.
	mux.HandleFunc("POST /initialize", h.handleInitialize)
	mux.HandleFunc("POST /mcp", h.handleMCP)
	mux.HandleFunc("GET /mcp/status", h.handleMCPStatus)

	// Stream adapter.
	mux.HandleFunc("GET /sse", h.handleSSE)
	mux.HandleFunc("GET /mcp/stream", h.handleSSE)

	// Legacy/simple adapter.
	mux.HandleFunc("GET /ping", h.handlePingGet)
	mux.HandleFunc("POST /ping", h.handlePingPost)
	mux.HandleFunc("GET /check-website", h.handleWebsiteGet)
	mux.HandleFunc("POST /check-website", h.handleWebsitePost)
	mux.HandleFunc("POST /tools/list", h.handleToolsList)
	mux.HandleFunc("GET /tools", h.handleToolsList)
	mux.HandleFunc("POST /tools/call", h.handleToolsCall)
	mux.HandleFunc("POST /debug", h.handleDebug)

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /info", h.handleInfo)
	mux.HandleFunc("GET /openapi.json", h.handleOpenAPI)

	// CORS sits outermost so preflight requests never reach the auth
	// check.
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", sessionIDHeader, protocolVersionHeader, lastEventIDHeader},
		ExposedHeaders: []string{sessionIDHeader, protocolVersionHeader},
		MaxAge:         3600,
	})
	h.chain = c.Handler(h.requestContext(h.securityHeaders(h.requireAuth(mux))))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

// requestContext tags the request context for log enrichment.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		next.ServeHTTP(w, r)
	})
}

// requireAuth consumes the authorizer capability. Preflight never reaches
// here; CORS answers it upstream.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch h.authorize.Authorize(r) {
		case authz.Allowed:
			next.ServeHTTP(w, r)
		case authz.MissingCredential:
			h.log.WarnContext(r.Context(), "auth.missing")
			w.Header().Set(wwwAuthenticateHeader, "Bearer")
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":   "Authentication required",
				"message": "Missing Authorization header",
			})
		case authz.InvalidCredential:
			h.log.WarnContext(r.Context(), "auth.invalid")
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":   "Invalid authentication",
				"message": "Invalid bearer token",
			})
		}
	})
}

// writeJSON is the common JSON response helper.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
