package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	cfgpkg "github.com/sniperthink/chatqueue/internal/config"
	"github.com/sniperthink/chatqueue/internal/intake"
	"github.com/sniperthink/chatqueue/internal/lock"
	"github.com/sniperthink/chatqueue/internal/metrics"
	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/internal/sequence"
	httpserver "github.com/sniperthink/chatqueue/internal/server/http"
	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/internal/storage/pebblestore"
	"github.com/sniperthink/chatqueue/internal/storage/redisstore"
	logpkg "github.com/sniperthink/chatqueue/pkg/log"
)

// Options wires one server process.
type Options struct {
	Config cfgpkg.Config

	// Handler processes dequeued messages. Nil uses a handler that logs
	// the message and acknowledges it; real deployments plug the reply
	// pipeline in here.
	Handler queue.Handler
}

func openStore(ctx context.Context, cfg cfgpkg.Config) (storage.Store, error) {
	switch cfg.Backend {
	case cfgpkg.BackendRedis:
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case cfgpkg.BackendPebble:
		return pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir})
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Run starts the queue node and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logpkg.New(logpkg.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := openStore(sctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer func() { _ = st.Close() }()

	logger.Info("starting chatqueue server",
		zap.String("backend", string(cfg.Backend)),
		zap.String("http", cfg.HTTPAddr),
		zap.Int("workers", cfg.Workers))

	q := queue.New(st, queue.Config{
		MaxQueueSize:        cfg.Queue.MaxQueueSize,
		LeaseTimeout:        cfg.Queue.LeaseTimeout(),
		MaxRetries:          cfg.Queue.MaxRetries,
		DeadLetterRetention: cfg.Queue.DeadLetterRetention(),
		PollInterval:        cfg.Queue.PollInterval(),
	}, logger)

	qm := metrics.New(nil, q, logger)
	q.WithObserver(qm)
	qm.StartCollector(0)
	defer qm.StopCollector()

	locks := lock.NewManager(st, logger)
	seqs := sequence.NewGenerator(st, logger)
	if ttl := cfg.Queue.SequenceCacheTTL(); ttl > 0 {
		seqs.CacheTTL = ttl
	}
	in := intake.New(q, locks, seqs, intake.Options{DedupWindow: cfg.Queue.DedupWindow()}, logger)

	sweeper := queue.NewSweeper(q, cfg.Queue.SweepInterval(), logger)
	sweeper.Start()
	defer sweeper.Stop()

	handler := opts.Handler
	if handler == nil {
		handler = logHandler(logger)
	}
	if cfg.Workers > 0 {
		pool := queue.NewWorkerPool(q, handler, queue.PoolOptions{Workers: cfg.Workers}, logger)
		pool.Start()
		defer pool.Stop()
	}

	hsrv := httpserver.New(q, in, st, httpserver.Options{WebhookRateLimit: cfg.WebhookRateLimit}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-sctx.Done()
	hsrv.Close()
	wg.Wait()
	logger.Info("chatqueue server stopped")
	return nil
}

// logHandler acknowledges every message after logging it. The reply pipeline
// replaces this in embedded deployments.
func logHandler(logger *logpkg.Logger) queue.Handler {
	l := logger.Named("handler")
	return func(ctx context.Context, msg *queue.QueuedMessage) error {
		l.Info("message processed",
			zap.String("partition", msg.PartitionKey),
			zap.String("message_id", msg.MessageID),
			zap.Int("retry_count", msg.RetryCount))
		return nil
	}
}
