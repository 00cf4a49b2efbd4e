// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Command devsim runs a small machine built around a RAM and a UART bridge.
//
// Bytes typed in a terminal attached to the UART's pseudo-terminal are stored
// in memory and sent back in upper case. The path of the pseudo-terminal is
// printed on startup and each time the channel is reopened.
//
// Usage:
//
//	devsim [-config devsim.yaml]
//
// The configuration file path can also be set with the DEVSIM_CONFIG
// environment variable.
//
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/db47h/devsim"
	"github.com/db47h/devsim/internal/config"
	"github.com/db47h/devsim/internal/logging"
	"github.com/db47h/devsim/trace"
	"github.com/db47h/devsim/uart"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("DEVSIM_CONFIG"), "configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("devsim", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	log = logging.New(cfg.Logging, version)
	log.Info("starting devsim", "version", version, "config", configPath)

	rec, err := newRecorder(cfg.Trace, log.With("component", "trace"))
	if err != nil {
		return errors.Wrap(err, "opening trace backend")
	}
	if cl, ok := rec.(io.Closer); ok {
		defer func() {
			if err := cl.Close(); err != nil {
				log.Error("error closing trace backend", "error", err)
			}
		}()
	}

	uopts := []uart.Option{
		uart.WithLogger(log.With("component", "uart").Logger),
		uart.WithEcho(cfg.UART.Echo),
		uart.WithCRLF(cfg.UART.CRLF),
		uart.WithQueueSize(cfg.UART.QueueSize),
	}
	m, err := newMachine(cfg, uopts,
		devsim.MaxPasses(cfg.Simulation.MaxPasses),
		devsim.WithLogger(log.With("component", "engine").Logger),
		devsim.WithRecorder(rec))
	if err != nil {
		return errors.Wrap(err, "building circuit")
	}
	defer func() {
		if err := m.Dispose(); err != nil {
			log.Error("error disposing circuit", "error", err)
		}
	}()
	log.Info("circuit ready", "devices", m.Size(), "wires", m.Wires(), "memory_words", m.mem.Size())

	p := newPanel(os.Stdout, m.Root(), cfg.Probes, log.Logger)
	n, err := clock(ctx, m, cfg, p)
	log.Info("simulation stopped", "cycles", n, "passes", m.Passes())
	return err
}

// clock runs clock cycles until the context is cancelled or the configured
// number of cycles is reached.
//
func clock(ctx context.Context, m *machine, cfg *config.Config, p *panel) (int, error) {
	var tick <-chan time.Time
	if d := cfg.ClockPeriod(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}
	n := 0
	for cfg.Simulation.Cycles == 0 || n < cfg.Simulation.Cycles {
		if tick != nil {
			select {
			case <-ctx.Done():
				return n, nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return n, nil
		}
		if err := m.Cycle(m.clk); err != nil {
			return n, err
		}
		n++
		p.update(n, m.Get)
	}
	return n, nil
}

func newRecorder(cfg config.TraceConfig, log *logging.Logger) (devsim.Recorder, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendLog:
		return trace.NewLog(log.Logger, slog.LevelInfo), nil
	case config.BackendSQLite:
		r, err := trace.OpenSQLite(cfg.SQLite.Path, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("recording transitions", "backend", "sqlite", "path", cfg.SQLite.Path, "run", r.Run())
		return r, nil
	case config.BackendMQTT:
		opts := pahomqtt.NewClientOptions().
			AddBroker(cfg.MQTT.Broker).
			SetClientID(cfg.MQTT.ClientID).
			SetCleanSession(true)
		if cfg.MQTT.Username != "" {
			opts.SetUsername(cfg.MQTT.Username)
			opts.SetPassword(cfg.MQTT.Password)
		}
		r, err := trace.DialMQTT(opts, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS), log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("recording transitions", "backend", "mqtt", "broker", cfg.MQTT.Broker, "run", r.Run())
		return r, nil
	case config.BackendInfluxDB:
		r, err := trace.DialInflux(cfg.InfluxDB.URL, cfg.InfluxDB.Token, cfg.InfluxDB.Org, cfg.InfluxDB.Bucket, cfg.InfluxDB.Measurement, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("recording transitions", "backend", "influxdb", "url", cfg.InfluxDB.URL, "run", r.Run())
		return r, nil
	}
	return nil, errors.Errorf("unknown trace backend %q", cfg.Backend)
}
