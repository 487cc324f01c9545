package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/intake"
	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// Options tunes the HTTP surface.
type Options struct {
	// WebhookRateLimit is the per-IP request budget per minute on the
	// webhook routes (default 300).
	WebhookRateLimit int
}

// Server exposes the webhook intake and the ops endpoints.
type Server struct {
	queue  *queue.Queue
	intake *intake.Intake
	store  storage.Store
	logger *log.Logger
	srv    *http.Server
	lis    net.Listener
}

// New wires the router. The metrics endpoint serves the default Prometheus
// registry.
func New(q *queue.Queue, in *intake.Intake, st storage.Store, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.WebhookRateLimit <= 0 {
		opts.WebhookRateLimit = 300
	}
	s := &Server{queue: q, intake: in, store: st, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(opts.WebhookRateLimit, time.Minute))
		r.Post("/webhook/{platform}", s.handleWebhook)
	})

	r.Get("/v1/healthz", s.handleHealth)
	r.Get("/v1/queue/stats", s.handleStats)
	r.Post("/v1/queue/recover", s.handleRecover)
	r.Get("/v1/queue/dlq", s.handleDLQList)
	r.Delete("/v1/queue/dlq/{partition}/{id}", s.handleDLQDelete)
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Handler: r}
	return s
}

// ListenAndServe serves until ctx is cancelled, then drains with a 5s
// shutdown grace.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", zap.String("addr", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
