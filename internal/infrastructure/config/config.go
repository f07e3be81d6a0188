package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sensor drivers.
const (
	DriverSerial = "serial"
	DriverSim    = "sim"
)

// Display drivers.
const (
	DriverUSB     = "usb"
	DriverVirtual = "virtual"
)

// Config is the root configuration structure for BenchDash.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Display   DisplayConfig   `yaml:"display"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelemetryConfig contains sensor board polling settings.
type TelemetryConfig struct {
	// Driver selects the board link: "serial" or "sim".
	Driver string `yaml:"driver"`

	// SimDevices is the number of simulated boards when Driver is "sim".
	SimDevices int `yaml:"sim_devices"`

	HistoryCapacity int           `yaml:"history_capacity"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	BaudRate        int           `yaml:"baud_rate"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`

	// RescanInterval controls periodic sensor and display rediscovery.
	// Zero disables rescanning.
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// DisplayConfig contains display session settings.
type DisplayConfig struct {
	// Driver selects the display transport: "usb" or "virtual".
	Driver string `yaml:"driver"`

	// VirtualCount is the number of virtual displays when Driver is "virtual".
	VirtualCount int `yaml:"virtual_count"`

	// FrameDir, if set, receives PNG dumps of virtual display frames.
	FrameDir     string        `yaml:"frame_dir"`
	DumpInterval time.Duration `yaml:"dump_interval"`

	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	TickInterval      time.Duration `yaml:"tick_interval"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	SplashDuration    time.Duration `yaml:"splash_duration"`
}

// ShutdownConfig bounds the coordinated shutdown.
type ShutdownConfig struct {
	BarrierTimeout time.Duration `yaml:"barrier_timeout"`
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
}

// DatabaseConfig contains SQLite inventory settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`

	// PublishInterval throttles telemetry per board.
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// PublishInterval throttles telemetry per board.
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file log settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BENCHDASH_SECTION_KEY
// For example: BENCHDASH_TELEMETRY_DRIVER, BENCHDASH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			Driver:          DriverSerial,
			SimDevices:      2,
			HistoryCapacity: 1000,
			PollInterval:    100 * time.Millisecond,
			BaudRate:        115200,
			ReadTimeout:     500 * time.Millisecond,
			RescanInterval:  10 * time.Second,
		},
		Display: DisplayConfig{
			Driver:            DriverUSB,
			VirtualCount:      1,
			DumpInterval:      time.Second,
			VendorID:          0x28DA,
			ProductID:         0xEF01,
			TickInterval:      50 * time.Millisecond,
			KeepAliveInterval: 5 * time.Second,
			SplashDuration:    3 * time.Second,
		},
		Shutdown: ShutdownConfig{
			BarrierTimeout: 10 * time.Second,
			CleanupTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/benchdash.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "benchdash",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:     "benchdash",
			PublishInterval: time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:             "http://localhost:8086",
			Org:             "benchdash",
			Bucket:          "benchlab",
			BatchSize:       500,
			FlushInterval:   1,
			PublishInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    50,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BENCHDASH_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	// Telemetry
	str("BENCHDASH_TELEMETRY_DRIVER", &cfg.Telemetry.Driver)
	integer("BENCHDASH_TELEMETRY_SIM_DEVICES", &cfg.Telemetry.SimDevices)
	duration("BENCHDASH_TELEMETRY_POLL_INTERVAL", &cfg.Telemetry.PollInterval)

	// Display
	str("BENCHDASH_DISPLAY_DRIVER", &cfg.Display.Driver)
	integer("BENCHDASH_DISPLAY_VIRTUAL_COUNT", &cfg.Display.VirtualCount)
	str("BENCHDASH_DISPLAY_FRAME_DIR", &cfg.Display.FrameDir)

	// Database
	boolean("BENCHDASH_DATABASE_ENABLED", &cfg.Database.Enabled)
	str("BENCHDASH_DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	boolean("BENCHDASH_MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("BENCHDASH_MQTT_HOST", &cfg.MQTT.Broker.Host)
	str("BENCHDASH_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	str("BENCHDASH_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// InfluxDB
	boolean("BENCHDASH_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	str("BENCHDASH_INFLUXDB_URL", &cfg.InfluxDB.URL)
	str("BENCHDASH_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	str("BENCHDASH_LOG_LEVEL", &cfg.Logging.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Telemetry validation
	switch c.Telemetry.Driver {
	case DriverSerial, DriverSim:
	default:
		errs = append(errs, fmt.Sprintf("telemetry.driver must be %q or %q", DriverSerial, DriverSim))
	}
	if c.Telemetry.HistoryCapacity < 1 {
		errs = append(errs, "telemetry.history_capacity must be at least 1")
	}
	if c.Telemetry.PollInterval <= 0 {
		errs = append(errs, "telemetry.poll_interval must be positive")
	}
	if c.Telemetry.Driver == DriverSerial && c.Telemetry.BaudRate <= 0 {
		errs = append(errs, "telemetry.baud_rate must be positive")
	}
	if c.Telemetry.Driver == DriverSim && c.Telemetry.SimDevices < 0 {
		errs = append(errs, "telemetry.sim_devices cannot be negative")
	}
	if c.Telemetry.RescanInterval < 0 {
		errs = append(errs, "telemetry.rescan_interval cannot be negative")
	}

	// Display validation
	switch c.Display.Driver {
	case DriverUSB, DriverVirtual:
	default:
		errs = append(errs, fmt.Sprintf("display.driver must be %q or %q", DriverUSB, DriverVirtual))
	}
	if c.Display.TickInterval <= 0 {
		errs = append(errs, "display.tick_interval must be positive")
	}
	if c.Display.KeepAliveInterval <= 0 {
		errs = append(errs, "display.keepalive_interval must be positive")
	}
	if c.Display.SplashDuration < 0 {
		errs = append(errs, "display.splash_duration cannot be negative")
	}

	// Shutdown validation
	if c.Shutdown.BarrierTimeout <= 0 {
		errs = append(errs, "shutdown.barrier_timeout must be positive")
	}
	if c.Shutdown.CleanupTimeout <= 0 {
		errs = append(errs, "shutdown.cleanup_timeout must be positive")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
