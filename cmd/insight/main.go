package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etdc/insight/pkg/api"
	"github.com/etdc/insight/pkg/cache"
	"github.com/etdc/insight/pkg/config"
	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/observability"
	"github.com/etdc/insight/pkg/poller"
	"github.com/etdc/insight/pkg/view"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	// Global flags
	configPath string
	verbose    bool
	plain      bool

	// Set up by the root command before any subcommand runs
	app *App
)

// App holds the components shared by every command
type App struct {
	Config    *config.Config
	Telemetry *observability.Telemetry
	Metrics   *observability.Metrics
	Logger    *observability.StructuredLogger
	Gateway   domain.Gateway
	Renderer  *view.Renderer

	cache   cache.Cache
	logFile *os.File
	metrics *observability.MetricsServer
}

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "Terminal client for the public-opinion research backend",
	Long: `insight submits research queries to the research backend, follows the
research task and its sub-tasks until they finish, and renders the
aggregated report: statistics, sentiment, dominant opinion and the
collected sources.

It also lists, downloads and generates digest documents.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		app, err = newApp(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colours, borders and the live view")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(digestsCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command and releases the app on every outcome
func execute(ctx context.Context) error {
	defer func() {
		if app != nil {
			app.Close(context.Background())
			app = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func newApp(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.LoadOrDefault(configPath)
	a := &App{Config: cfg}

	if err := a.initLogging(); err != nil {
		return nil, err
	}
	if err := a.initObservability(); err != nil {
		return nil, err
	}

	backendCache, err := cache.New(ctx, cache.Options{Type: cfg.Cache.Type, URL: cfg.Cache.URL})
	if err != nil {
		a.Logger.Warn(ctx, "cache unavailable, continuing without it", map[string]interface{}{
			"type":  cfg.Cache.Type,
			"error": err.Error(),
		})
		backendCache = cache.Nop{}
	}
	a.cache = backendCache

	client := api.NewClient(cfg.API.BaseURL, &api.Options{
		Timeout:   cfg.MustDuration(cfg.API.Timeout),
		UserAgent: "insight/" + Version,
	})
	instrumented, err := api.NewInstrumentedClient(client, a.Telemetry, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to instrument api client: %w", err)
	}
	a.Gateway = api.NewCachingClient(instrumented, backendCache, cfg.MustDuration(cfg.Cache.TTL),
		a.Logger.WithComponent("cache"), a.Metrics)

	a.Renderer = view.New(a.viewOptions())

	a.Logger.Debug(ctx, "insight initialized", map[string]interface{}{
		"version":  Version,
		"config":   configPath,
		"base_url": cfg.API.BaseURL,
		"cache":    cfg.Cache.Type,
	})
	return a, nil
}

func (a *App) initLogging() error {
	logCfg := a.Config.Observability.Logging
	level := logCfg.Level
	if verbose {
		level = "debug"
	}

	out := os.Stderr
	switch logCfg.Output {
	case "stdout":
		out = os.Stdout
	case "file":
		f, err := os.OpenFile(logCfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		out = f
	}

	observability.ConfigureLogging(observability.LogOptions{
		Level:  level,
		Format: logCfg.Format,
		Output: out,
	})
	a.Logger = observability.NewStructuredLogger("insight")
	return nil
}

func (a *App) initObservability() error {
	obs := a.Config.Observability
	telConfig := &observability.TelemetryConfig{
		ServiceName:    "insight",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   obs.Tracing.Endpoint,
		OTLPInsecure:   obs.Tracing.Insecure,
		SamplingRate:   obs.Tracing.SamplingRate,
		EnableTracing:  obs.Tracing.Enabled,
		EnableMetrics:  obs.Metrics.Enabled,
	}

	var err error
	a.Telemetry, err = observability.NewTelemetry(telConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.Metrics, err = observability.NewMetrics(a.Telemetry.Meter())
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if obs.Metrics.Enabled && obs.Metrics.Port > 0 {
		a.metrics, err = observability.StartMetricsServer(fmt.Sprintf(":%d", obs.Metrics.Port))
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	return nil
}

// Close flushes telemetry and releases the cache and log file
func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		_ = a.metrics.Shutdown(shutdownCtx)
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error(shutdownCtx, "error shutting down telemetry", err)
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// Interactive reports whether the live view can be used
func (a *App) Interactive() bool {
	return !a.Config.Output.Plain && !plain && term.IsTerminal(int(os.Stdout.Fd()))
}

// PollerConfig converts the polling section of the configuration
func (a *App) PollerConfig() poller.Config {
	cfg := a.Config
	return poller.Config{
		Interval:               cfg.MustDuration(cfg.Polling.Interval),
		FollowUpDelay:          cfg.MustDuration(cfg.Polling.FollowUpDelay),
		MaxConsecutiveFailures: cfg.Polling.MaxConsecutiveFailures,
	}
}

// PollerOptions wires logging and telemetry into a poller
func (a *App) PollerOptions() []poller.Option {
	return []poller.Option{
		poller.WithLogger(a.Logger.WithComponent("poller")),
		poller.WithTelemetry(a.Telemetry, a.Metrics),
	}
}

func (a *App) viewOptions() view.Options {
	out := a.Config.Output
	style := out.Style
	if style == "auto" && !term.IsTerminal(int(os.Stdout.Fd())) {
		style = "notty"
	}
	return view.Options{
		Width: out.Width,
		Style: style,
		Plain: out.Plain || plain,
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
