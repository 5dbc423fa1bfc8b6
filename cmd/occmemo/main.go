// Command occmemo acquires exchange info memos and re-processes the recently
// modified ones through rasterization and OCR.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/echoma/occ-info-memo/internal/config"
	"github.com/echoma/occ-info-memo/internal/queue"
	"github.com/echoma/occ-info-memo/internal/worker"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "occmemo: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "occmemo",
		Short: "OCC info-memo acquisition and OCR pipeline",
		Long: `occmemo crawls the exchange's info-memo catalog into a local document store
and re-processes recently modified documents through rasterization and OCR.
Run one instance per store: concurrent runs race on the page artifacts.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.ini", "Configuration file")
	cmd.AddCommand(
		newCrawlCmd(logger),
		newAnalyseCmd(logger),
		newEnqueueCmd(),
		newWorkerCmd(logger),
	)
	return cmd
}

func newCrawlCmd(logger *slog.Logger) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch the memo search feed and download new documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if category == "" {
				category = cfg.Category
			}
			crawler, cleanup, err := buildCrawler(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return crawler.Crawl(cmd.Context(), category)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Memo category filter (defaults to config)")
	return cmd
}

func newAnalyseCmd(logger *slog.Logger) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "analyse",
		Short: "Re-process documents modified inside the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if window <= 0 {
				window = cfg.Window
			}
			p, cleanup, err := buildPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			// A non-nil return aborts with exit code 1, which is how callers
			// tell an aborted batch from a completed one.
			return p.Run(cmd.Context(), window)
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Re-processing window (defaults to config)")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a re-processing batch for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return fmt.Errorf("queue requires [queue] addr or OCCMEMO_REDIS_ADDR")
			}
			if window <= 0 {
				window = cfg.Window
			}
			client := asynq.NewClient(redisOpt(cfg))
			defer client.Close()
			return queue.EnqueueReprocess(cmd.Context(), client, window)
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Re-processing window (defaults to config)")
	return cmd
}

func newWorkerCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve queued re-processing batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return fmt.Errorf("worker requires [queue] addr or OCCMEMO_REDIS_ADDR")
			}
			p, cleanup, err := buildPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			// Concurrency is pinned to 1: two batches against one store
			// would race on page purge and rewrite.
			server := asynq.NewServer(redisOpt(cfg), asynq.Config{Concurrency: 1})
			processor := worker.NewProcessor(p, logger)

			go func() {
				<-cmd.Context().Done()
				server.Shutdown()
			}()
			return server.Run(processor.Handler())
		},
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
