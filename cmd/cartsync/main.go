package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cartsync/internal/engine"
	"github.com/ajitpratap0/cartsync/pkg/clients"
	"github.com/ajitpratap0/cartsync/pkg/config"
	jsonpool "github.com/ajitpratap0/cartsync/pkg/json"
	"github.com/ajitpratap0/cartsync/pkg/logger"
	"github.com/ajitpratap0/cartsync/pkg/sink"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := &cobra.Command{
		Use:   "cartsync",
		Short: "Cartsync - commerce catalog synchronization engine",
		Long: `Cartsync reconciles a remote commerce catalog with a local SQL store.
It fetches products, variants, and unit costs over GraphQL with adaptive rate
limiting, flattens them into relational rows, and bulk-upserts them in chunks.`,
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Cartsync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Check command to validate a configuration file
	var checkConfigFile string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(checkConfigFile)
		},
	}
	checkCmd.Flags().StringVarP(&checkConfigFile, "config", "c", "", "Path to YAML configuration file (required)")
	_ = checkCmd.MarkFlagRequired("config")
	root.AddCommand(checkCmd)

	// Main sync command
	var configFile, mode, since, productID, logLevel string
	var limit int
	var timeout time.Duration
	var dryRun bool

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a catalog synchronization",
		Long: `Run one catalog synchronization in the selected mode.
Full mode walks the entire catalog, partial mode fetches products updated
since a watermark, and single mode refreshes one product by identifier.

Example:
  cartsync sync --config cartsync.yaml --mode partial --since 2026-08-01T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(configFile, mode, since, productID, logLevel, limit, timeout, dryRun)
		},
	}

	// Required flags
	syncCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (required)")
	_ = syncCmd.MarkFlagRequired("config")

	// Optional flags
	syncCmd.Flags().StringVarP(&mode, "mode", "m", engine.ModeFull, "Sync mode: full, partial, or single")
	syncCmd.Flags().StringVar(&since, "since", "", "Watermark for partial mode, lower bound on product updated_at (RFC3339)")
	syncCmd.Flags().IntVar(&limit, "limit", 0, "Maximum products to fetch in partial mode (0 = unbounded)")
	syncCmd.Flags().StringVar(&productID, "product-id", "", "Product identifier for single mode")
	syncCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Sync timeout")
	syncCmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level (debug, info, warn, error)")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the full pipeline against an in-memory sink instead of the configured store")

	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration from defaults plus a YAML file.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := config.Load(configFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configFile, err)
	}
	return cfg, nil
}

// runCheck validates a configuration file and prints the effective settings.
func runCheck(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	if cfg.API.AccessToken != "" {
		cfg.API.AccessToken = "(redacted)"
	}

	out, err := jsonpool.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Printf("configuration OK\n%s\n", out)
	return nil
}

// runSync executes one synchronization with the given configuration and flags
func runSync(configFile, mode, since, productID, logLevel string, limit int, timeout time.Duration, dryRun bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if dryRun {
		cfg.Storage.Driver = config.DriverMemory
	}

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    "json",
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(
		zap.String("component", "cartsync-cli"),
		zap.String("mode", mode),
	)

	log.Info("starting sync",
		zap.String("config", configFile),
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("dry_run", dryRun),
		zap.Int("batch_size", cfg.Sync.BatchSize),
		zap.Int("chunk_size", cfg.Sync.ChunkSize),
		zap.Duration("timeout", timeout))

	// Expose Prometheus metrics while the sync runs
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		go serveMetrics(addr, log)
	}

	req := engine.Request{Mode: mode, Limit: limit, ProductID: productID}
	if since != "" {
		watermark, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", since, err)
		}
		req.Since = watermark
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := sink.Open(ctx, &cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage sink: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close sink", zap.Error(err))
		}
	}()

	transport := clients.NewGraphQLClient(&cfg.API, log)
	eng := engine.New(cfg, transport, store, log)

	startTime := time.Now()
	report, err := eng.Sync(ctx, req)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	duration := time.Since(startTime)

	log.Info("sync completed successfully",
		zap.Duration("duration", duration),
		zap.Int64("products", report.ProductsProcessed),
		zap.Int64("variants", report.VariantsProcessed),
		zap.Float64("products_per_second", float64(report.ProductsProcessed)/duration.Seconds()))

	out, err := jsonpool.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	fmt.Println(string(out))

	return nil
}

// serveMetrics exposes the Prometheus handler until the process exits.
func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener stopped", zap.Error(err))
	}
}
