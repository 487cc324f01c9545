package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/sniperthink/chatqueue/internal/cmd/client"
	serverrun "github.com/sniperthink/chatqueue/internal/cmd/server"
	cfgpkg "github.com/sniperthink/chatqueue/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatqueue",
		Short: "Message delivery queue for multi-channel conversations",
		Long: "chatqueue is a single-binary message delivery queue: webhook intake,\n" +
			"per-conversation partitions with processing leases, retry and\n" +
			"dead-letter handling, and an HTTP ops surface.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start a queue node",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgpkg.LoadDotenv()
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)

			// flags win over file and env
			if v, _ := cmd.Flags().GetString("http"); v != "" {
				cfg.HTTPAddr = v
			}
			if v, _ := cmd.Flags().GetString("backend"); v != "" {
				cfg.Backend = cfgpkg.Backend(v)
			}
			if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
				cfg.DataDir = v
			}
			if v, _ := cmd.Flags().GetString("redis-addr"); v != "" {
				cfg.Redis.Addr = v
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("max-queue-size") {
				cfg.Queue.MaxQueueSize, _ = cmd.Flags().GetInt("max-queue-size")
			}
			if cmd.Flags().Changed("lease-timeout-ms") {
				cfg.Queue.LeaseTimeoutMs, _ = cmd.Flags().GetInt64("lease-timeout-ms")
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.Queue.MaxRetries, _ = cmd.Flags().GetInt("max-retries")
			}
			if cmd.Flags().Changed("sweep-interval-ms") {
				cfg.Queue.SweepIntervalMs, _ = cmd.Flags().GetInt64("sweep-interval-ms")
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.LogLevel = v
			}
			if v, _ := cmd.Flags().GetString("log-format"); v != "" {
				cfg.LogFormat = v
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Path to a JSON config file")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("backend", "", "Storage backend: pebble|redis")
	serverStartCmd.Flags().String("data-dir", "", "Data directory for the pebble backend")
	serverStartCmd.Flags().String("redis-addr", "", "Redis address for the redis backend")
	serverStartCmd.Flags().Int("workers", 0, "Worker goroutines consuming the queue")
	serverStartCmd.Flags().Int("max-queue-size", 0, "Per-partition backpressure threshold")
	serverStartCmd.Flags().Int64("lease-timeout-ms", 0, "Processing lease timeout in ms")
	serverStartCmd.Flags().Int("max-retries", 0, "Failed attempts before dead-lettering")
	serverStartCmd.Flags().Int64("sweep-interval-ms", 0, "Recovery sweep interval in ms")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: json|text")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// ops client commands
	rootCmd.AddCommand(
		clientcmd.NewStatsCommand(apiURL),
		clientcmd.NewRecoverCommand(apiURL),
		clientcmd.NewDLQCommand(apiURL),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("CHATQ_HTTP_BASE"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
