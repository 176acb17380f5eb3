package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"smartshop/internal/api"
	"smartshop/internal/assistant"
	"smartshop/internal/cache"
	"smartshop/internal/catalog"
	"smartshop/internal/config"
	"smartshop/internal/logging"
	"smartshop/internal/oracle"
	"smartshop/internal/reco"
	"smartshop/internal/reviews"
	"smartshop/internal/search"
	"smartshop/internal/social"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "smartshop",
	Short: "smartshop - signature-gated ranking and cache pipeline",
	Long: `smartshop serves product recommendations, smart search, and shopping
insights over an unreliable generative-text oracle. Every oracle-backed
path degrades to a deterministic fallback, and results are cached behind
content signatures so unchanged state never triggers a recompute.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "smartshop.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Configure(logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("Starting %s", cfg.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.NewStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("Store opened", zap.String("path", cfg.Store.DatabasePath))

	var kv cache.Cache
	if cfg.Cache.Dir != "" {
		kv, err = cache.NewBadger(cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		logger.Info("Badger cache opened", zap.String("dir", cfg.Cache.Dir))
	} else {
		kv = cache.NewMemory()
		logger.Info("Using in-memory cache")
	}
	defer kv.Close()

	client, err := oracle.NewGemini(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.OracleTimeout())
	if err != nil {
		return fmt.Errorf("create oracle client: %w", err)
	}
	logger.Info("Oracle ready", zap.Bool("configured", client.Configured()), zap.String("model", cfg.Oracle.Model))

	agg := social.NewAggregator(store, store)
	recoEngine := reco.NewEngine(store, store, kv, client, agg, cfg.Reco)
	searchEngine := search.NewEngine(store, kv, client, cfg.Search, cfg.SearchTTL())
	reviewSvc := reviews.NewService(store, store, kv, client)
	assistantSvc := assistant.NewService(store, kv, client, cfg.InventoryTTL())

	handler := api.NewHandler(store, recoEngine, searchEngine, reviewSvc, assistantSvc)
	server := api.NewServer(cfg.Server.Addr, api.NewRouter(handler), cfg.ShutdownTimeout())

	// Hot-reload the logging section on config file changes.
	watcher, err := config.Watch(configPath, func(next *config.Config) {
		if err := logging.Configure(logging.Options{
			DebugMode:  next.Logging.DebugMode || verbose,
			Dir:        next.Logging.Dir,
			Level:      next.Logging.Level,
			Categories: next.Logging.Categories,
		}); err != nil {
			logger.Warn("Logging reload failed", zap.Error(err))
			return
		}
		logger.Info("Logging configuration reloaded")
	}, func(err error) {
		logger.Warn("Config watch error", zap.Error(err))
	})
	if err != nil {
		logger.Warn("Config watch unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	logger.Info("Serving", zap.String("addr", cfg.Server.Addr))
	return server.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
