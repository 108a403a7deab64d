// Package server exposes the HTTP API of the director daemon.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"director/internal/cache"
	"director/internal/config"
	"director/internal/docker"
	"director/internal/images"
	"director/internal/security"
	"director/internal/state"
	"director/internal/version"
	"director/internal/worker"
)

const sessionName = "director-session"

// Server holds the HTTP API and its collaborators.
type Server struct {
	config       *config.Config
	sessionStore *sessions.CookieStore
	manager      *state.Manager
	dock         *docker.Manager
	navigator    *images.Navigator
	worker       *worker.Worker
	registry     *prom.Registry
	vitalsCache  *cache.Cache
}

// New wires the API server over the running components.
func New(cfg *config.Config, manager *state.Manager, dock *docker.Manager, navigator *images.Navigator, w *worker.Worker, registry *prom.Registry) *Server {
	s := &Server{
		config:       cfg,
		sessionStore: sessions.NewCookieStore([]byte(cfg.SessionKey)),
		manager:      manager,
		dock:         dock,
		navigator:    navigator,
		worker:       w,
		registry:     registry,
		vitalsCache:  cache.New(5 * time.Second),
	}

	s.sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/setup", s.handleSetup)
	mux.HandleFunc("/api/v1/login", s.handleLogin)
	mux.HandleFunc("/api/v1/logout", s.handleLogout)

	// Authenticated API
	mux.HandleFunc("/api/v1/me", s.AuthRequired(s.handleMe))
	mux.HandleFunc("/api/v1/images", s.AuthRequired(s.handleImages))
	mux.HandleFunc("/api/v1/services", s.AuthRequired(s.handleServices))
	mux.HandleFunc("/api/v1/services/", s.AuthRequired(s.routeService))
	mux.HandleFunc("/api/v1/configs", s.AuthRequired(s.handleConfigList))
	mux.HandleFunc("/api/v1/configs/", s.AuthRequired(s.handleConfig))
	mux.HandleFunc("/api/v1/operations/", s.AuthRequired(s.handleOperation))
	mux.HandleFunc("/api/v1/registrations", s.AuthRequired(s.handleRegistrations))
	mux.HandleFunc("/api/v1/logs/stream", s.AuthRequired(s.handleLogStream))
	mux.HandleFunc("/api/v1/status/latest", s.AuthRequired(s.handleStatusLatest))
	mux.HandleFunc("/api/v1/status/history", s.AuthRequired(s.handleStatusHistory))
	mux.HandleFunc("/api/v1/stat/common", s.AuthRequired(s.handleStatCommon))
	mux.HandleFunc("/api/v1/stat/events", s.AuthRequired(s.handleStatEvents))

	return mux
}

// Start runs the HTTP server until it fails.
// Start serves HTTP until ctx is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.ListenAddr
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// routeService dispatches /api/v1/services/{name}[/action] requests.
func (s *Server) routeService(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/services/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	if name == "" {
		writeError(w, http.StatusNotFound, "service name required")
		return
	}
	if err := security.ValidateServiceName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		s.handleService(w, r, name)
	case "run":
		s.handleServiceOp(w, r, name, "run")
	case "start":
		s.handleServiceOp(w, r, name, "start")
	case "stop":
		s.handleServiceOp(w, r, name, "stop")
	case "restart":
		s.handleServiceOp(w, r, name, "restart")
	case "state":
		s.handleServiceState(w, r, name)
	default:
		writeError(w, http.StatusNotFound, "unknown service action")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

// writeJSON renders a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError renders a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
