package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hvactools/infinityctl/internal/core"
	"github.com/hvactools/infinityctl/internal/providers/carrier"
	"github.com/hvactools/infinityctl/internal/sinks/csvlog"
	"github.com/hvactools/infinityctl/internal/sinks/sqlitelog"
	"github.com/hvactools/infinityctl/pkg/config"
	"github.com/hvactools/infinityctl/pkg/model"
	"github.com/hvactools/infinityctl/pkg/retry"
	"github.com/hvactools/infinityctl/pkg/temperature"
)

// Command flags
var (
	inCelsius       bool
	csvPath         string
	monitorInterval time.Duration
	zoneArg         string
	heatFlag        float64
	coolFlag        float64
	holdUntilFlag   string
	modeFlag        string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// session bundles the loaded configuration with an authenticated client
// and the discovered system serials.
type session struct {
	cfg     *config.Config
	client  *carrier.Client
	systems []string
	logger  *slog.Logger
}

// newSession loads the configuration, authenticates, and discovers the
// systems on the account.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Log.Level)

	opts := []carrier.Option{
		carrier.WithTimeout(cfg.API.Timeout),
		carrier.WithSettleDelay(cfg.API.SettleDelay),
		carrier.WithLogger(logger),
	}
	if cfg.API.BaseURL != "" {
		opts = append(opts, carrier.WithBaseURL(cfg.API.BaseURL))
	}

	client := carrier.NewClient(cfg.Credentials.Username, cfg.Credentials.Password, opts...)
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	systems, err := client.Systems(ctx)
	if err != nil {
		return nil, err
	}
	if len(systems) == 0 {
		return nil, fmt.Errorf("no systems found on account %s", cfg.Credentials.Username)
	}

	return &session{cfg: cfg, client: client, systems: systems, logger: logger}, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print current thermostat status",
	Long: `Print the current mode, outdoor temperature, and per-zone readings
for every system on the account.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&inCelsius, "celsius", false, "Display temperatures in Celsius")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	for _, serial := range s.systems {
		sample, err := s.client.ReadTelemetry(ctx, serial)
		if err != nil {
			return err
		}
		printSample(sample)
	}
	return nil
}

func printSample(sample model.Sample) {
	fmt.Printf("System %s | Mode: %s", sample.System, sample.Mode)
	if sample.OutdoorTemp != nil {
		fmt.Printf(" | Outdoor: %s", formatTemp(*sample.OutdoorTemp))
	}
	fmt.Println()

	for _, z := range sample.Zones {
		if inCelsius {
			fmt.Printf("  %s: %s / %.1f%% RH | Activity: %s | Heat: %s Cool: %s | Fan: %s | Status: %s\n",
				z.Name, formatTemp(z.Temp), z.Humidity, z.Activity,
				formatTemp(z.HeatSetpoint), formatTemp(z.CoolSetpoint), z.Fan, z.Conditioning)
		} else {
			fmt.Printf("  %s\n", z)
		}
	}
}

func formatTemp(f float64) string {
	if inCelsius {
		return fmt.Sprintf("%.1f°C", temperature.FahrenheitToCelsius(f))
	}
	return fmt.Sprintf("%.1f°F", f)
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Append one telemetry sample to the CSV log",
	Long: `Collect one telemetry sample per system and append it to the CSV
log file. Intended for cron-style scheduling.`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&csvPath, "csv", "", "CSV log file path (overrides config)")
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	sinks, err := openSinks(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer closeSinks(sinks, s.logger)

	monitor := core.NewMonitor(s.client, sinks, s.cfg.Monitor.Interval,
		retry.DefaultConfig(), nil, s.logger)
	return monitor.RunOnce(ctx)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously log telemetry at a fixed interval",
	Long: `Run the telemetry monitor: poll every system at a fixed interval
and append each sample to the configured sinks. Runs until interrupted.

When monitor.health_port is set, a /healthz endpoint reports whether
polling cycles are completing.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Polling interval (overrides config)")
	monitorCmd.Flags().StringVar(&csvPath, "csv", "", "CSV log file path (overrides config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	interval := s.cfg.Monitor.Interval
	if monitorInterval > 0 {
		interval = monitorInterval
	}

	sinks, err := openSinks(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer closeSinks(sinks, s.logger)

	// Mark the monitor unhealthy once two intervals pass without a
	// completed cycle.
	health := core.NewHealthTracker(2 * interval)
	if s.cfg.Monitor.HealthPort > 0 {
		startHealthServer(ctx, s.cfg.Monitor.HealthPort, health, s.logger)
	}

	monitor := core.NewMonitor(s.client, sinks, interval, retry.DefaultConfig(), health, s.logger)
	if err := monitor.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	s.logger.Info("monitor stopped")
	return nil
}

// openSinks builds the sink list from the configuration, honoring the
// --csv override.
func openSinks(ctx context.Context, cfg *config.Config) ([]model.Sink, error) {
	var sinks []model.Sink

	path := cfg.Monitor.CSVPath
	if csvPath != "" {
		path = csvPath
	}
	if path != "" {
		sinks = append(sinks, csvlog.NewSink(path))
	}
	if cfg.Monitor.SQLitePath != "" {
		sinks = append(sinks, sqlitelog.NewSink(cfg.Monitor.SQLitePath))
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sinks configured: set monitor.csv_path or monitor.sqlite_path")
	}

	for _, sink := range sinks {
		if err := sink.Open(ctx); err != nil {
			return nil, fmt.Errorf("opening %s sink: %w", sink.Info().Name, err)
		}
	}
	return sinks, nil
}

func closeSinks(sinks []model.Sink, logger *slog.Logger) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			logger.Error("failed to close sink", "sink", sink.Info().Name, "error", err)
		}
	}
}

func startHealthServer(ctx context.Context, port int, health *core.HealthTracker, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.ServeHealth())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting health server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown health server", "error", err)
		}
	}()
}

var setTempCmd = &cobra.Command{
	Use:   "set-temp",
	Short: "Set zone setpoints and engage a hold",
	Long: `Set the heating and/or cooling setpoint for a zone and engage a
manual hold. The zone may be given as an id or as an alias from the
configuration file.

With --hold-until the hold releases at the given time (HH:MM on the
thermostat's clock); otherwise it stays until changed.`,
	Example: `  # Hold downstairs at 70°F heat until 10pm
  infinityctl set-temp --zone downstairs --heat 70 --hold-until 22:00

  # Indefinite cooling hold on zone 1
  infinityctl set-temp --zone 1 --cool 74`,
	RunE: runSetTemp,
}

func init() {
	setTempCmd.Flags().StringVar(&zoneArg, "zone", "1", "Zone id or alias")
	setTempCmd.Flags().Float64Var(&heatFlag, "heat", 0, "Heating setpoint in °F")
	setTempCmd.Flags().Float64Var(&coolFlag, "cool", 0, "Cooling setpoint in °F")
	setTempCmd.Flags().StringVar(&holdUntilFlag, "hold-until", "", "Release the hold at this time (HH:MM)")
}

func runSetTemp(cmd *cobra.Command, args []string) error {
	var heat, cool *float64
	if cmd.Flags().Changed("heat") {
		heat = &heatFlag
	}
	if cmd.Flags().Changed("cool") {
		cool = &coolFlag
	}
	if heat == nil && cool == nil {
		return fmt.Errorf("at least one of --heat or --cool is required")
	}

	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	zoneID := s.cfg.ResolveZone(zoneArg)
	for _, serial := range s.systems {
		if err := s.client.SetSetpoints(ctx, serial, zoneID, heat, cool, holdUntilFlag); err != nil {
			return err
		}
		fmt.Printf("System %s zone %s updated\n", serial, zoneID)
	}
	return nil
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode",
	Short: "Set the system operating mode",
	Long: `Set the operating mode for every system on the account. Typical
values are off, cool, heat, auto, and fanonly.`,
	Example: `  infinityctl set-mode --mode cool`,
	RunE:    runSetMode,
}

func init() {
	setModeCmd.Flags().StringVar(&modeFlag, "mode", "", "Operating mode (off, cool, heat, auto, fanonly)")
	_ = setModeCmd.MarkFlagRequired("mode")
}

func runSetMode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}

	for _, serial := range s.systems {
		if err := s.client.SetMode(ctx, serial, modeFlag); err != nil {
			return err
		}
		fmt.Printf("System %s mode set to %s\n", serial, modeFlag)
	}
	return nil
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write an example configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.CreateExampleConfig(path); err != nil {
			return err
		}
		fmt.Printf("Wrote example configuration to %s\n", path)
		return nil
	},
}
