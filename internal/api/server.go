// Package api exposes the concierge over HTTP: session bootstrap, login,
// chat turns, reset, and direct similarity search.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/catalog"
	"github.com/gatewise/gatewise/internal/identity"
	"github.com/gatewise/gatewise/internal/registry"
)

// SessionService is the registry surface the server depends on.
type SessionService interface {
	ResolveOrCreate(ctx context.Context, id uuid.UUID, token *identity.Token) (*registry.Session, error)
	Dispose(id uuid.UUID) error
}

// ChatService runs one chat turn against a session.
type ChatService interface {
	Turn(ctx context.Context, id uuid.UUID, prompt string) (string, error)
}

// SearchService runs a direct similarity search over the amenity catalog.
type SearchService interface {
	Search(ctx context.Context, query string, topK int) ([]catalog.ScoredAmenity, error)
}

// ServerConfig contains configuration for creating the HTTP server.
type ServerConfig struct {
	Logger   *slog.Logger
	Sessions SessionService    // Required
	Chat     ChatService       // Required
	Search   SearchService     // Required
	Verifier identity.Verifier // Required: validates login credentials

	ClientID     string // identity-provider client id, exposed to the frontend
	CookieSecret []byte // Required: 32+ bytes, signs the session cookie
	IsDev        bool   // drops the Secure cookie flag for plain-HTTP testing
	TrustProxy   bool   // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst    int    // rate limiter burst size per IP (0 = default 60)
}

// Server is the concierge HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session service is required")
	}
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Search == nil {
		return nil, errors.New("search service is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("identity verifier is required")
	}
	if len(cfg.CookieSecret) < 32 {
		return nil, errors.New("cookie secret must be at least 32 bytes")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		logger:   logger,
		sessions: cfg.Sessions,
		chat:     cfg.Chat,
		search:   cfg.Search,
		verifier: cfg.Verifier,
		cookies:  newCookieCodec(cfg.CookieSecret, cfg.IsDev),
		clientID: cfg.ClientID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.home)
	mux.HandleFunc("POST /login/{provider}", h.login)
	mux.HandleFunc("POST /chat", h.chatTurn)
	mux.HandleFunc("POST /reset", h.reset)
	mux.HandleFunc("GET /semantic_similarity_search", h.similaritySearch)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID precedes Logging so request_id is available in log attributes.
	var stack http.Handler = mux
	stack = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(stack)
	stack = loggingMiddleware(logger)(stack)
	stack = requestIDMiddleware()(stack)
	stack = recoveryMiddleware(logger)(stack)

	// Health check bypasses the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", stack)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// health is the liveness endpoint.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
