package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
simulation:
  max_passes: 50
  clock_period_ms: 2
memory:
  address_width: 10
  data_width: 16
uart:
  enabled: false
trace:
  backend: sqlite
  sqlite:
    path: /tmp/trace.db
probes:
  - "clock,clk"
  - "ready,data_ready"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Simulation.MaxPasses != 50 {
		t.Errorf("Simulation.MaxPasses = %d, want 50", cfg.Simulation.MaxPasses)
	}
	if got := cfg.ClockPeriod(); got != 2*time.Millisecond {
		t.Errorf("ClockPeriod() = %v, want 2ms", got)
	}
	if cfg.Memory.AddressWidth != 10 || cfg.Memory.DataWidth != 16 {
		t.Errorf("Memory = %+v, want 10x16", cfg.Memory)
	}
	if cfg.UART.Enabled {
		t.Error("UART.Enabled = true, want false")
	}
	// untouched fields keep their defaults
	if cfg.UART.QueueSize != 256 {
		t.Errorf("UART.QueueSize = %d, want 256", cfg.UART.QueueSize)
	}
	if cfg.Trace.SQLite.Path != "/tmp/trace.db" {
		t.Errorf("Trace.SQLite.Path = %q, want %q", cfg.Trace.SQLite.Path, "/tmp/trace.db")
	}
	if len(cfg.Probes) != 2 || cfg.Probes[1] != "ready,data_ready" {
		t.Errorf("Probes = %v", cfg.Probes)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Trace.Backend != BackendNone {
		t.Errorf("Trace.Backend = %q, want %q", cfg.Trace.Backend, BackendNone)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/devsim.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "simulation: [max_passes")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "simulation:\n  max_passes: 50\n")
	t.Setenv("DEVSIM_SIMULATION_MAX_PASSES", "75")
	t.Setenv("DEVSIM_UART_ENABLED", "false")
	t.Setenv("DEVSIM_TRACE_BACKEND", "log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Simulation.MaxPasses != 75 {
		t.Errorf("Simulation.MaxPasses = %d, want 75", cfg.Simulation.MaxPasses)
	}
	if cfg.UART.Enabled {
		t.Error("UART.Enabled = true, want false")
	}
	if cfg.Trace.Backend != BackendLog {
		t.Errorf("Trace.Backend = %q, want %q", cfg.Trace.Backend, BackendLog)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("DEVSIM_MEMORY_DATA_WIDTH", "wide")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "DEVSIM_MEMORY_DATA_WIDTH") {
		t.Errorf("Load() error = %v, want env error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name:    "max passes",
			modify:  func(c *Config) { c.Simulation.MaxPasses = 0 },
			wantErr: "simulation.max_passes",
		},
		{
			name:    "address width",
			modify:  func(c *Config) { c.Memory.AddressWidth = 25 },
			wantErr: "memory.address_width",
		},
		{
			name:    "data width",
			modify:  func(c *Config) { c.Memory.DataWidth = 4 },
			wantErr: "memory.data_width",
		},
		{
			name:    "queue size",
			modify:  func(c *Config) { c.UART.QueueSize = 0 },
			wantErr: "uart.queue_size",
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Trace.Backend = "kafka" },
			wantErr: `unknown trace.backend "kafka"`,
		},
		{
			name: "mqtt qos",
			modify: func(c *Config) {
				c.Trace.Backend = BackendMQTT
				c.Trace.MQTT.QoS = 3
			},
			wantErr: "trace.mqtt.qos",
		},
		{
			name:    "influxdb bucket",
			modify:  func(c *Config) { c.Trace.Backend = BackendInfluxDB },
			wantErr: "trace.influxdb.org",
		},
		{
			name: "joined",
			modify: func(c *Config) {
				c.Simulation.Cycles = -1
				c.UART.QueueSize = -1
			},
			wantErr: "simulation.cycles must not be negative; uart.queue_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
