package server

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/vision"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Options tunes the transport.
type Options struct {
	APIKey          string
	IdleTimeout     time.Duration // read deadline, refreshed per message
	MaxMessageBytes int64
}

// Server holds dependencies for HTTP and WebSocket handlers.
type Server struct {
	sessions *session.Registry
	store    storage.Store    // nil when history is disabled
	pose     vision.Estimator // nil when no image pipeline is configured
	opts     Options
	log      *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	tailnet  WhoIser // nil off-tailnet
	streams  streams
	now      func() time.Time
}

// New creates a new Server with all routes configured. store, pose and mcp
// are optional.
func New(sessions *session.Registry, store storage.Store, pose vision.Estimator, mcp http.Handler, opts Options, log *slog.Logger) *Server {
	s := &Server{
		sessions: sessions,
		store:    store,
		pose:     pose,
		opts:     opts,
		log:      log,
		router:   chi.NewRouter(),
		upgrader: websocket.Upgrader{
			// Browsers on the LAN or tailnet connect from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
	s.routes(mcp)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(mcp http.Handler) {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Live coaching stream (no auth, tsnet handles access)
	s.router.Get("/ws", s.handleWS)

	s.router.Get("/api/v1/health", s.handleHealth)
	s.router.Get("/api/v1/sessions", s.handleSessions)

	// History endpoints (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.opts.APIKey))
		r.Get("/api/v1/sets", s.handleQuerySets)
		r.Get("/api/v1/sets/summary", s.handleSetSummary)
		if mcp != nil {
			r.Handle("/mcp", mcp)
		}
	})
}

// SetFrontend mounts the embedded SPA filesystem.
// Unmatched routes serve index.html for client-side routing.
func (s *Server) SetFrontend(webFS fs.FS) {
	fileServer := http.FileServerFS(webFS)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		// Try to serve the exact file first
		f, err := webFS.Open(r.URL.Path[1:]) // strip leading /
		if err == nil {
			f.Close()
			fileServer.ServeHTTP(w, r)
			return
		}
		// Fallback to index.html for SPA routing
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
