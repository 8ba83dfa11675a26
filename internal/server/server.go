package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushdeploy/internal/deployment"
	"pushdeploy/internal/project"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// deployMargin is added to the longest deployment when sizing the
	// write and shutdown timeouts, to cover notifications and the response.
	deployMargin = 30 * time.Second

	// Rate limiting - requests per minute per client IP
	GlobalRateLimit  = 120
	WebhookRateLimit = 30
)

// Deployer runs a project's deployment for a verified push.
type Deployer interface {
	Deploy(ctx context.Context, proj *project.Project, push deployment.Push) *deployment.Result
}

// Server represents the HTTP server
type Server struct {
	Registry   *project.Registry
	Deployer   Deployer
	ConfigFile string
	Logger     *slog.Logger
	TestMode   bool
}

// NewServer creates a new server instance
func NewServer(registry *project.Registry, deployer Deployer, configFile string, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry:   registry,
		Deployer:   deployer,
		ConfigFile: configFile,
		Logger:     logger,
		TestMode:   testMode,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware("global", GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)

	webhook := r.With()
	if !s.TestMode {
		webhook = r.With(NewRateLimitMiddleware("webhook", WebhookRateLimit, s.Logger))
	}
	webhook.Post("/webhook/{projectName}", s.HandleWebhook)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

// deploymentBudget is the longest a webhook request may legitimately take.
// A push that arrives while the same project is deploying waits for the
// running deployment before starting its own, so two full runs are allowed.
// Requests queued behind that one can still exceed it.
func (s *Server) deploymentBudget() time.Duration {
	return 2*s.Registry.MaxCommandTimeout() + deployMargin
}

// HTTPServer builds the http.Server for addr. The write timeout is sized
// so that the slowest configured deployment can still get its response out.
func (s *Server) HTTPServer(addr string) *http.Server {
	writeTimeout := max(HTTPWriteTimeout, s.deploymentBudget())

	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       HTTPReadTimeout,
		ReadHeaderTimeout: HTTPReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       HTTPIdleTimeout,
	}
}

// Run serves HTTP on host:port until ctx is cancelled, then shuts down
// gracefully, letting running deployments finish.
func (s *Server) Run(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := s.HTTPServer(addr)

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("starting server", "addr", addr, "write_timeout", srv.WriteTimeout.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down server, waiting for running deployments")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.deploymentBudget())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.Logger.Info("server stopped")
	return nil
}
