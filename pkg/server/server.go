// Package server exposes the skill catalog, execution and performance
// reports over an HTTP JSON API.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/performance"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
)

// Catalog is the read side of the registry
type Catalog interface {
	List() []*skills.Skill
	Get(name string) (*skills.Skill, error)
	FindByCategory(category string) []*skills.Skill
	FindByTag(tag string) []*skills.Skill
	FindByExecutionKind(kind skills.ExecutionKind) []*skills.Skill
	FindForDomain(domain string) []*skills.Skill
	Stats() registry.Stats
	ResolveNames(names ...string) (*registry.Resolution, error)
	Analyze(name string) (*registry.DependencyAnalysis, error)
}

// Runner executes skills
type Runner interface {
	Execute(ctx context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult
}

// Reporter produces performance reports from the execution history
type Reporter interface {
	Report(ctx context.Context, name string) (*performance.Report, error)
	Reports(ctx context.Context) ([]performance.Report, error)
}

// Config is the listen address
type Config struct {
	Host string
	Port int
}

// Validate checks the listen address
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Server serves the API
type Server struct {
	router   *mux.Router
	catalog  Catalog
	runner   Runner
	reporter Reporter
	config   Config
	server   *http.Server
}

// New creates a server. reporter may be nil when history is disabled.
func New(config Config, catalog Catalog, runner Runner, reporter Reporter) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	s := &Server{
		router:   mux.NewRouter(),
		catalog:  catalog,
		runner:   runner,
		reporter: reporter,
		config:   config,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers every route on the root router so that a known path
// requested with the wrong method is answered with 405.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/skills", s.handleListSkills).Methods(http.MethodGet)
	s.router.HandleFunc("/api/skills/{name}", s.handleGetSkill).Methods(http.MethodGet)
	s.router.HandleFunc("/api/skills/{name}/dependencies", s.handleDependencies).Methods(http.MethodGet)
	s.router.HandleFunc("/api/skills/{name}/execute", s.handleExecute).Methods(http.MethodPost)
	s.router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/performance", s.handleListPerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/api/performance/{name}", s.handleGetPerformance).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.server = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	presenter.Info("Serving skill API on http://" + listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "skill API server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.WithError(err).Error("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	response := map[string]any{
		"error":   message,
		"status":  status,
		"success": false,
	}
	if err != nil {
		if status >= http.StatusInternalServerError {
			logger.G(r.Context()).WithError(err).Error(message)
		}
		response["detail"] = err.Error()
		if kind := skills.KindOf(err); kind != "" {
			response["kind"] = kind
		}
	}
	writeJSON(w, status, response)
}
