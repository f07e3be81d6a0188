// BenchDash - BENCHLAB telemetry on WigiDash panels
//
// This is the main entry point for the BenchDash service. It samples every
// attached BENCHLAB sensor board once, fans the samples out to any number of
// touch displays, optionally exports them to MQTT and InfluxDB, and shuts
// all displays down in lockstep on SIGINT/SIGTERM, on the panel's Shutdown
// button, or on the MQTT shutdown command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/benchdash/internal/display"
	"github.com/nerrad567/benchdash/internal/fleet"
	"github.com/nerrad567/benchdash/internal/infrastructure/config"
	"github.com/nerrad567/benchdash/internal/infrastructure/database"
	"github.com/nerrad567/benchdash/internal/infrastructure/influxdb"
	"github.com/nerrad567/benchdash/internal/infrastructure/logging"
	"github.com/nerrad567/benchdash/internal/infrastructure/mqtt"
	"github.com/nerrad567/benchdash/internal/inventory"
	"github.com/nerrad567/benchdash/internal/render"
	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/telemetry"
	"github.com/nerrad567/benchdash/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv names the config file when --config is not given.
const configEnv = "BENCHDASH_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds parsed command-line flags.
type options struct {
	configPath  string
	logLevel    string
	showVersion bool
}

// parseFlags parses args. It returns pflag.ErrHelp after printing usage for -h.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("benchdash", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file (env "+configEnv+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv(configEnv)
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command-line arguments without the program name
//   - out: Destination for --version and --help output
//
// Returns:
//   - error: nil on clean shutdown, or error describing the startup failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "benchdash %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	log := logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on exit
	log.Info("starting BenchDash",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	var (
		sinks  telemetry.MultiSink
		checks []healthCheck
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		sinks = append(sinks, telemetry.NewThrottle(mqttClient, cfg.MQTT.PublishInterval))
		checks = append(checks, healthCheck{"mqtt", mqttClient.HealthCheck})
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB, log.With("component", "influxdb"))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		sinks = append(sinks, telemetry.NewThrottle(influxClient, cfg.InfluxDB.PublishInterval))
		checks = append(checks, healthCheck{"influxdb", influxClient.HealthCheck})
	}

	// Open device inventory (optional)
	var inv fleet.Inventory
	if cfg.Database.Enabled {
		db, err := database.Open(database.FromConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		inv = inventory.NewSQLiteRepository(db.DB)
		checks = append(checks, healthCheck{"database", db.HealthCheck})
		log.Info("device inventory ready", "path", db.Path(), "migrations_applied", applied)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, healthCheckTimeout)
	if err := healthCheckAll(startCtx, checks); err != nil {
		log.Warn("startup health check failed", "error", err)
	}
	cancelStart()

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go monitorHealth(healthCtx, healthCheckInterval, log.With("component", "health"), checks)

	opener, scanner := sensorBackend(cfg.Telemetry)

	transport, closeTransport := displayBackend(cfg.Display)
	defer func() {
		if closeErr := closeTransport(); closeErr != nil {
			log.Error("error closing display transport", "error", closeErr)
		}
	}()

	var sink telemetry.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	m := fleet.New(fleet.Config{
		Opener:            opener,
		Scanner:           scanner,
		Decoder:           sensor.BlockDecoder{},
		Sink:              sink,
		HistoryCapacity:   cfg.Telemetry.HistoryCapacity,
		PollInterval:      cfg.Telemetry.PollInterval,
		Transport:         transport,
		VendorID:          cfg.Display.VendorID,
		ProductID:         cfg.Display.ProductID,
		Renderer:          render.NewRaster(),
		TickInterval:      cfg.Display.TickInterval,
		KeepAliveInterval: cfg.Display.KeepAliveInterval,
		SplashDuration:    cfg.Display.SplashDuration,
		BarrierTimeout:    cfg.Shutdown.BarrierTimeout,
		CleanupTimeout:    cfg.Shutdown.CleanupTimeout,
		Inventory:         inv,
		Logger:            log.With("component", "fleet"),
	})

	devices := m.DiscoverSensorDevices(ctx)
	log.Info("sensor discovery complete", "driver", cfg.Telemetry.Driver, "devices", len(devices))

	started, err := m.StartSessions(ctx)
	if err != nil {
		log.Warn("display discovery failed", "driver", cfg.Display.Driver, "error", err)
	}
	log.Info("display sessions started", "driver", cfg.Display.Driver, "count", started)

	if mqttClient != nil {
		if err := mqttClient.HandleCommand("shutdown", func() {
			log.Info("shutdown command received over MQTT")
			go m.GracefulShutdown()
		}); errors.Is(err, mqtt.ErrNotConnected) {
			log.Warn("MQTT shutdown command deferred until the broker reconnects")
		} else if err != nil {
			log.Warn("MQTT command subscription failed", "error", err)
		}
	}

	go m.Watch(ctx, cfg.Telemetry.RescanInterval)

	log.Info("initialisation complete, waiting for shutdown")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		m.GracefulShutdown()
	case <-m.Done():
		log.Info("shutdown requested from a display")
	}
	m.Wait()

	log.Info("BenchDash stopped")
	return nil
}

// sensorBackend returns the board opener and scanner for the configured driver.
func sensorBackend(cfg config.TelemetryConfig) (sensor.Opener, sensor.Scanner) {
	if cfg.Driver == config.DriverSim {
		sim := sensor.NewSimOpener(sensor.DefaultSimBoards(cfg.SimDevices)...)
		return sim, sim
	}
	opener := sensor.NewSerialOpener(sensor.SerialConfig{
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	return opener, sensor.SerialScanner{}
}

// displayBackend returns the display transport and its release function.
func displayBackend(cfg config.DisplayConfig) (display.Transport, func() error) {
	if cfg.Driver == config.DriverVirtual {
		t := display.NewVirtualTransport(cfg.VirtualCount, display.VirtualConfig{
			FrameDir:     cfg.FrameDir,
			DumpInterval: cfg.DumpInterval,
		})
		return t, func() error { return nil }
	}
	t := display.NewUSBTransport()
	return t, t.Close
}
