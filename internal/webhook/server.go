package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bottany/registry-engine/internal/config"
)

const (
	serverReadTimeout    = 10 * time.Second
	serverWriteTimeout   = 10 * time.Second
	serverIdleTimeout    = 60 * time.Second
	serverRequestTimeout = 30 * time.Second
)

// Server hosts the webhook callback endpoint plus health and metrics.
type Server struct {
	handler *Handler
	httpSrv *http.Server
}

// NewServer wires the handler into a chi router on the configured
// address and path. gatherer may be nil to skip the metrics endpoint.
func NewServer(cfg config.WebhookConfig, handler *Handler, gatherer prometheus.Gatherer) *Server {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
	)

	router.Post(cfg.Path, handler.ServeHTTP)
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Server{
		handler: handler,
		httpSrv: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
			IdleTimeout:  serverIdleTimeout,
		},
	}
}

// Start runs the server until it is shut down. It returns nil on a
// clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	logr.FromContextOrDiscard(ctx).Info("Webhook server listening", "address", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the handler, then stops the HTTP server gracefully.
// In-flight requests finish; new notifications get 503 so the platform
// redelivers them later.
func (s *Server) Shutdown(ctx context.Context) error {
	s.handler.Drain()
	return s.httpSrv.Shutdown(ctx)
}
