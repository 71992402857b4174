package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/virtserve/virtserve/internal/storage"
	"github.com/virtserve/virtserve/pkg/admin"
	"github.com/virtserve/virtserve/pkg/cache"
	"github.com/virtserve/virtserve/pkg/config"
	"github.com/virtserve/virtserve/pkg/engine"
	"github.com/virtserve/virtserve/pkg/fault"
	"github.com/virtserve/virtserve/pkg/logging"
	"github.com/virtserve/virtserve/pkg/metrics"
	"github.com/virtserve/virtserve/pkg/proxy"
	"github.com/virtserve/virtserve/pkg/recording"
	"github.com/virtserve/virtserve/pkg/requestlog"
	"github.com/virtserve/virtserve/pkg/scenario"
	"github.com/virtserve/virtserve/pkg/template"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

type serveFlags struct {
	configFile  string
	listen      string
	adminPrefix string
	logLevel    string
	logFormat   string
	definitions []string
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

// serveCmd starts the virtualization server in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the virtualization server (foreground)",
	Example: `  # Start with defaults
  virtd serve

  # Start with a config file
  virtd serve --config virtserve.yaml

  # Start on a custom port with definition files
  virtd serve --listen :3000 --definitions 'defs/**/*.yaml'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(&serveFlagVals)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := &serveFlagVals
	serveCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to configuration file")
	serveCmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address (host:port)")
	serveCmd.Flags().StringVar(&f.adminPrefix, "admin-prefix", "", "URL prefix for the admin API")
	serveCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	serveCmd.Flags().StringArrayVar(&f.definitions, "definitions", nil, "Definition file glob (repeatable)")
}

func runServe(f *serveFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
	})

	ctx := context.Background()

	repo := storage.NewMemoryRepository()
	if err := cfg.SeedFiles(ctx, repo); err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	rules := cache.NewRuleCache(repo, logger)
	if err := rules.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading rule cache: %w", err)
	}
	proxies := cache.NewProxyCache(repo, logger)
	if err := proxies.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading proxy configs: %w", err)
	}
	scenarios := scenario.NewEngine(repo, logger)
	if err := scenarios.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	journal := requestlog.NewJournal(requestlog.DefaultCapacity)
	registry := metrics.NewRegistry()

	handler := engine.NewHandler(engine.Deps{
		Matcher:   engine.NewMatcher(rules, logger),
		Renderer:  engine.NewRenderer(template.New(), logger),
		Scenarios: scenarios,
		Faults:    fault.NewInjector(logger),
		Proxies:   proxies,
		Forwarder: proxy.NewForwarder(logger),
		Recorder:  recording.NewRecorder(repo, rules, logger),
		Journal:   journal,
		Metrics:   engine.NewMetrics(registry),
		Logger:    logger,
	})

	adminAPI := admin.New(repo, rules, proxies, scenarios, journal, logger)

	mux := http.NewServeMux()
	prefix := strings.TrimRight(cfg.AdminPrefix, "/")
	mux.Handle("GET "+prefix+"/metrics", registry.Handler())
	mux.Handle(prefix+"/", http.StripPrefix(prefix, adminAPI.Handler()))
	mux.Handle("/", handler)

	srv := engine.NewServer(cfg.Listen, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("virtd started", "listen", cfg.Listen, "admin", prefix)
	fmt.Printf("virtd listening on %s (admin API under %s)\n", cfg.Listen, prefix)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// loadConfig reads the config file (or defaults) and applies flag overrides.
func loadConfig(f *serveFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.adminPrefix != "" {
		cfg.AdminPrefix = f.adminPrefix
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	cfg.Definitions = append(cfg.Definitions, f.definitions...)
	return cfg, nil
}
