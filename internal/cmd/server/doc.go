// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the queue node: storage backend, queue, recovery sweeper, worker pool,
// metrics, and the HTTP surface, with signal-aware shutdown.
//
// Example:
//
//	cfg := config.Default()
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
