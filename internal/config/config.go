// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package config loads the configuration of the devsim driver.
//
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
//
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Memory     MemoryConfig     `yaml:"memory"`
	UART       UARTConfig       `yaml:"uart"`
	Logging    LoggingConfig    `yaml:"logging"`
	Trace      TraceConfig      `yaml:"trace"`
	// Probes are "label,pin" descriptors of root pins shown on the panel.
	Probes []string `yaml:"probes"`
}

// SimulationConfig contains propagation and clock settings.
//
type SimulationConfig struct {
	MaxPasses     int `yaml:"max_passes"`
	ClockPeriodMS int `yaml:"clock_period_ms"`
	// Cycles is the number of clock cycles to run. 0 means until interrupted.
	Cycles int `yaml:"cycles"`
}

// MemoryConfig contains the size of the RAM device.
//
type MemoryConfig struct {
	AddressWidth int `yaml:"address_width"`
	DataWidth    int `yaml:"data_width"`
	// Image is an optional file whose bytes are loaded at address 0.
	Image string `yaml:"image"`
}

// UARTConfig contains the UART bridge settings.
//
type UARTConfig struct {
	Enabled   bool `yaml:"enabled"`
	Echo      bool `yaml:"echo"`
	CRLF      bool `yaml:"crlf"`
	QueueSize int  `yaml:"queue_size"`
}

// LoggingConfig contains logging settings.
//
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TraceConfig selects where pin transitions of monitored devices go.
//
type TraceConfig struct {
	// Backend is one of none, log, sqlite, mqtt or influxdb.
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// SQLiteConfig contains the SQLite trace store settings.
//
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains the MQTT broker settings.
//
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// InfluxDBConfig contains the InfluxDB connection settings.
//
type InfluxDBConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Backend names.
//
const (
	BackendNone     = "none"
	BackendLog      = "log"
	BackendSQLite   = "sqlite"
	BackendMQTT     = "mqtt"
	BackendInfluxDB = "influxdb"
)

// Load reads configuration from a YAML file and applies environment variable
// overrides. If path is empty, only defaults and environment variables are
// used.
//
// Values are applied in this order: defaults, YAML file, environment
// variables. Environment variables are named DEVSIM_SECTION_KEY, like
// DEVSIM_SIMULATION_MAX_PASSES or DEVSIM_TRACE_BACKEND.
//
func Load(path string) (*Config, error) {
	cfg := Default()

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
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with default values.
//
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			MaxPasses:     1000,
			ClockPeriodMS: 10,
		},
		Memory: MemoryConfig{
			AddressWidth: 16,
			DataWidth:    8,
		},
		UART: UARTConfig{
			Enabled:   true,
			Echo:      true,
			CRLF:      true,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Trace: TraceConfig{
			Backend: BackendNone,
			SQLite: SQLiteConfig{
				Path: "./devsim-trace.db",
			},
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "devsim",
				TopicPrefix: "devsim",
			},
			InfluxDB: InfluxDBConfig{
				URL:         "http://localhost:8086",
				Measurement: "transition",
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"DEVSIM_SIMULATION_MAX_PASSES", &cfg.Simulation.MaxPasses},
		{"DEVSIM_SIMULATION_CLOCK_PERIOD_MS", &cfg.Simulation.ClockPeriodMS},
		{"DEVSIM_SIMULATION_CYCLES", &cfg.Simulation.Cycles},
		{"DEVSIM_MEMORY_ADDRESS_WIDTH", &cfg.Memory.AddressWidth},
		{"DEVSIM_MEMORY_DATA_WIDTH", &cfg.Memory.DataWidth},
		{"DEVSIM_UART_QUEUE_SIZE", &cfg.UART.QueueSize},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("DEVSIM_UART_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEVSIM_UART_ENABLED: %w", err)
		}
		cfg.UART.Enabled = b
	}

	if v := os.Getenv("DEVSIM_MEMORY_IMAGE"); v != "" {
		cfg.Memory.Image = v
	}
	if v := os.Getenv("DEVSIM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEVSIM_TRACE_BACKEND"); v != "" {
		cfg.Trace.Backend = v
	}
	if v := os.Getenv("DEVSIM_TRACE_SQLITE_PATH"); v != "" {
		cfg.Trace.SQLite.Path = v
	}
	if v := os.Getenv("DEVSIM_MQTT_USERNAME"); v != "" {
		cfg.Trace.MQTT.Username = v
	}
	if v := os.Getenv("DEVSIM_MQTT_PASSWORD"); v != "" {
		cfg.Trace.MQTT.Password = v
	}
	if v := os.Getenv("DEVSIM_INFLUXDB_TOKEN"); v != "" {
		cfg.Trace.InfluxDB.Token = v
	}
	return nil
}

// Validate checks the configuration for errors.
//
func (c *Config) Validate() error {
	var errs []string

	if c.Simulation.MaxPasses < 1 {
		errs = append(errs, "simulation.max_passes must be positive")
	}
	if c.Simulation.ClockPeriodMS < 0 {
		errs = append(errs, "simulation.clock_period_ms must not be negative")
	}
	if c.Simulation.Cycles < 0 {
		errs = append(errs, "simulation.cycles must not be negative")
	}

	// keep in sync with hwlib.MaxAddressWidth and hwlib.MaxDataWidth
	if c.Memory.AddressWidth < 1 || c.Memory.AddressWidth > 24 {
		errs = append(errs, "memory.address_width must be between 1 and 24")
	}
	if c.Memory.DataWidth < 8 || c.Memory.DataWidth > 64 {
		errs = append(errs, "memory.data_width must be between 8 and 64")
	}

	if c.UART.QueueSize < 1 {
		errs = append(errs, "uart.queue_size must be positive")
	}

	switch strings.ToLower(c.Trace.Backend) {
	case "", BackendNone, BackendLog:
	case BackendSQLite:
		if c.Trace.SQLite.Path == "" {
			errs = append(errs, "trace.sqlite.path is required")
		}
	case BackendMQTT:
		if c.Trace.MQTT.Broker == "" {
			errs = append(errs, "trace.mqtt.broker is required")
		}
		if c.Trace.MQTT.QoS < 0 || c.Trace.MQTT.QoS > 2 {
			errs = append(errs, "trace.mqtt.qos must be 0, 1, or 2")
		}
	case BackendInfluxDB:
		if c.Trace.InfluxDB.URL == "" {
			errs = append(errs, "trace.influxdb.url is required")
		}
		if c.Trace.InfluxDB.Org == "" || c.Trace.InfluxDB.Bucket == "" {
			errs = append(errs, "trace.influxdb.org and trace.influxdb.bucket are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown trace.backend %q", c.Trace.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ClockPeriod returns the simulation clock period.
//
func (c *Config) ClockPeriod() time.Duration {
	return time.Duration(c.Simulation.ClockPeriodMS) * time.Millisecond
}
