// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package trace provides recorders for the pin transitions of monitored
// devices.
//
// Recorders are attached to a circuit with devsim.WithRecorder. Only devices
// created with Config.Monitor set report their transitions:
//
//	rec, err := trace.OpenSQLite("trace.db", nil)
//	if err != nil {
//		// handle error
//	}
//	defer rec.Close()
//	c, err := devsim.NewCircuit(cfg, impl, devsim.WithRecorder(rec))
//
// Recorders are called from the simulation goroutine. They must not block for
// long: the network backends buffer or publish asynchronously.
//
package trace

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/db47h/devsim"
	"github.com/google/uuid"
)

// NewRunID returns a new unique identifier for a simulation run.
//
func NewRunID() string {
	return uuid.NewString()
}

// Log is a Recorder that logs transitions.
//
type Log struct {
	l     *slog.Logger
	level slog.Level
}

// NewLog returns a Recorder that logs transitions to l at the given level.
//
func NewLog(l *slog.Logger, level slog.Level) *Log {
	return &Log{l: l, level: level}
}

// Record implements devsim.Recorder.
//
func (r *Log) Record(t devsim.Transition) {
	r.l.Log(context.Background(), r.level, "transition",
		"pass", t.Pass,
		"device", t.Device,
		"pin", t.Pin,
		"state", t.State)
}

type multi []devsim.Recorder

// Multi returns a Recorder that forwards transitions to all of recs, in
// order.
//
func Multi(recs ...devsim.Recorder) devsim.Recorder {
	return multi(recs)
}

func (m multi) Record(t devsim.Transition) {
	for _, r := range m {
		r.Record(t)
	}
}

// Close closes the recorders that implement io.Closer and returns the first
// error.
//
func (m multi) Close() error {
	var err error
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			if e := c.Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	return err
}

// topic returns the MQTT topic for a pin of a device: device path elements
// are separated by slashes and wildcard characters are replaced.
//
func topic(prefix, device, pin string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.TrimSuffix(prefix, "/"))
		b.WriteByte('/')
	}
	b.WriteString(topicReplacer.Replace(device))
	b.WriteByte('/')
	b.WriteString(topicReplacer.Replace(pin))
	return b.String()
}

var topicReplacer = strings.NewReplacer(".", "/", "#", "_", "+", "_")
