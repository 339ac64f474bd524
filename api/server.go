// Package api hosts the HTTP surface: the router, cross-cutting middleware,
// the landing page, health and metrics endpoints, and mounted feature modules.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thuinanutshell/ux-interviewer/config"
)

//go:embed templates/index.html
var templateFS embed.FS

var landingTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var (
	// ErrInvalidModule is returned when a module has an empty name or a malformed prefix
	ErrInvalidModule = errors.New("invalid module")
	// ErrDuplicateModule is returned when a module name or prefix is already mounted
	ErrDuplicateModule = errors.New("duplicate module")
)

// Module is a feature area mounted under its own URL prefix.
type Module interface {
	Name() string
	Prefix() string
	// Routes registers handlers on a router already scoped to Prefix
	Routes(r *mux.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	config *config.Config
	logger *zap.SugaredLogger

	mu           sync.RWMutex
	modules      []Module
	healthChecks map[string]HealthCheck

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewServer creates a server with the fixed routes registered.
func NewServer(cfg *config.Config, logger *zap.SugaredLogger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		config:       cfg,
		logger:       logger,
		healthChecks: make(map[string]HealthCheck),
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	s.setupRoutes()
	go s.cleanupRateLimiters(time.Hour)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.metricsMiddleware)
	s.router.HandleFunc("/", s.landingPage).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
	s.setupDocs()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not Found"})
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method Not Allowed"})
	})
}

// Handler returns the router wrapped in CORS and rate limiting. CORS wraps
// the router so preflights and 404s carry the headers too.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.rateLimitMiddleware(s.router))
}

// Router exposes the underlying router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Mount registers m under its prefix. Empty names, prefixes that are not a
// single absolute path segment chain, and duplicates are rejected.
func (s *Server) Mount(m Module) error {
	name := strings.TrimSpace(m.Name())
	prefix := m.Prefix()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModule)
	}
	if !strings.HasPrefix(prefix, "/") || prefix == "/" || strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("%w: module %s has bad prefix %q", ErrInvalidModule, name, prefix)
	}
	if reserved(prefix) || s.docsPrefix(prefix) {
		return fmt.Errorf("%w: module %s uses reserved prefix %q", ErrInvalidModule, name, prefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.modules {
		if existing.Name() == name {
			return fmt.Errorf("%w: name %s already mounted", ErrDuplicateModule, name)
		}
		if existing.Prefix() == prefix {
			return fmt.Errorf("%w: prefix %s already used by %s", ErrDuplicateModule, prefix, existing.Name())
		}
	}

	m.Routes(s.router.PathPrefix(prefix).Subrouter())
	s.modules = append(s.modules, m)
	s.logger.Infow("Module registered", "module", name, "prefix", prefix)
	return nil
}

func reserved(prefix string) bool {
	switch prefix {
	case "/ws", "/health", "/metrics":
		return true
	}
	return false
}

// Modules returns the mounted modules in registration order.
func (s *Server) Modules() []Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Module(nil), s.modules...)
}

// HandleWebSocket serves the real-time transport at /ws.
func (s *Server) HandleWebSocket(h http.Handler) {
	s.router.Handle("/ws", h)
}

// AddHealthCheck registers a named dependency check reported by /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthChecks[name] = check
}

type landingData struct {
	Title   string
	DocsURL string
	Modules []Module
}

func (s *Server) landingPage(w http.ResponseWriter, r *http.Request) {
	data := landingData{
		Title:   "UX Interviewer API",
		DocsURL: s.config.SwaggerURL,
		Modules: s.Modules(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, data); err != nil {
		s.logger.Errorw("Failed to render landing page", "error", err)
	}
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(s.healthChecks))
	for k, v := range s.healthChecks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Checks: make(map[string]string, len(names)),
	}
	status := http.StatusOK
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			s.logger.Warnw("Health check failed", "check", name, "error", err)
			resp.Checks[name] = "error"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	WriteJSON(w, status, resp)
}

// Start listens on addr and serves until Stop. It returns http.ErrServerClosed after Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()
	return srv.Serve(ln)
}

// Stop stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
