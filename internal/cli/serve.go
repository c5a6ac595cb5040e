package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/crossroads/internal/busconn"
	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/journal"
	"github.com/roach88/crossroads/internal/loop"
)

// ServeConfig is the serve configuration, read from TOML and overridden by
// flags.
type ServeConfig struct {
	Bus                string `toml:"bus"`
	Name               string `toml:"name"`
	DB                 string `toml:"db"`
	StandardInterfaces bool   `toml:"standard_interfaces"`
	MetricsAddr        string `toml:"metrics_addr"`
}

// DefaultServeConfig returns the settings used when neither the file nor
// a flag sets a key.
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Bus:                busconn.SessionBus,
		StandardInterfaces: true,
	}
}

// LoadServeConfig reads a TOML config over the defaults. Unknown keys are
// rejected.
func LoadServeConfig(path string) (ServeConfig, error) {
	cfg := DefaultServeConfig()
	f, err := os.Open(path)
	if err != nil {
		return ServeConfig{}, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ServeConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return ServeConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the bus kind.
func (c ServeConfig) Validate() error {
	switch c.Bus {
	case busconn.SessionBus, busconn.SystemBus:
		return nil
	}
	return fmt.Errorf("bus must be %q or %q, got %q", busconn.SessionBus, busconn.SystemBus, c.Bus)
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Config     ServeConfig
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts, Config: DefaultServeConfig()})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <specs>...",
		Short: "Serve manifest objects on a message bus",
		Long: `Connect to the session or system bus and answer method calls for
every object the manifests declare, until interrupted.

Settings come from --config (TOML) when given; flags that are set
override the file.

Examples:
  crossroads serve ./calc --name com.example.Calc
  crossroads serve ./calc --config serve.toml --db calc.db
  crossroads serve ./calc --bus system --metrics-addr 127.0.0.1:9464`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(opts, cmd)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			return runServe(opts, cfg, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "TOML config file")
	cmd.Flags().StringVar(&opts.Config.Bus, "bus", opts.Config.Bus, "bus to connect to (session|system)")
	cmd.Flags().StringVar(&opts.Config.Name, "name", "", "well-known name to request")
	cmd.Flags().StringVar(&opts.Config.DB, "db", "", "journal dispatches to this SQLite database")
	cmd.Flags().BoolVar(&opts.Config.StandardInterfaces, "standard-interfaces", true, "answer Introspectable and Properties calls")
	cmd.Flags().StringVar(&opts.Config.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// resolveServeConfig layers explicitly set flags over the config file.
func resolveServeConfig(opts *ServeOptions, cmd *cobra.Command) (ServeConfig, error) {
	if opts.ConfigPath == "" {
		return opts.Config, opts.Config.Validate()
	}
	cfg, err := LoadServeConfig(opts.ConfigPath)
	if err != nil {
		return ServeConfig{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("bus") {
		cfg.Bus = opts.Config.Bus
	}
	if flags.Changed("name") {
		cfg.Name = opts.Config.Name
	}
	if flags.Changed("db") {
		cfg.DB = opts.Config.DB
	}
	if flags.Changed("standard-interfaces") {
		cfg.StandardInterfaces = opts.Config.StandardInterfaces
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.Config.MetricsAddr
	}
	return cfg, cfg.Validate()
}

func runServe(opts *ServeOptions, cfg ServeConfig, specs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := slog.Default()

	var crOpts []dispatch.Option
	if !cfg.StandardInterfaces {
		crOpts = append(crOpts, dispatch.WithoutStandardInterfaces())
	}
	svc, err := loadService(formatter, specs, logger, crOpts...)
	if err != nil {
		return err
	}

	loopOpts := []loop.Option{loop.WithLogger(logger)}
	if cfg.DB != "" {
		store, err := journal.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer store.Close()
		loopOpts = append(loopOpts, loop.WithJournal(store))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		loopOpts = append(loopOpts, loop.WithMetrics(loop.NewMetrics(reg)))
		srv := newMetricsServer(cfg.MetricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer shutdownServer(srv)
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	conn, err := busconn.Dial(cfg.Bus, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect", err)
	}
	defer conn.Close()
	if cfg.Name != "" {
		if err := conn.RequestName(cfg.Name); err != nil {
			return WrapExitError(ExitCommandError, "request name", err)
		}
	}

	lp, err := loop.New(svc.Crossroads, conn, loopOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "create loop", err)
	}
	loopDone := make(chan error, 1)
	go func() { loopDone <- lp.Run(ctx) }()

	logger.Info("crossroads serving",
		"bus", cfg.Bus,
		"name", cfg.Name,
		"objects", len(svc.Manifest.Objects),
	)
	serveErr := conn.Serve(ctx, lp)
	lp.Stop()
	runErr := <-loopDone

	if err := errors.Join(ignoreCanceled(serveErr), ignoreCanceled(runErr)); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	logger.Info("crossroads stopped")
	return nil
}

// newMetricsServer exposes reg on /metrics.
func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
