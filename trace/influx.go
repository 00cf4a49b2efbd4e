// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package trace

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/db47h/devsim"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

const influxPingTimeout = 5 * time.Second

// A PointWriter writes points asynchronously. It is implemented by the
// api.WriteAPI of the InfluxDB client.
//
type PointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Influx is a Recorder that writes transitions as points to InfluxDB.
//
// Points are tagged with the run identifier, device path and pin name. Their
// fields are the pin state and the propagation pass.
//
type Influx struct {
	w           PointWriter
	measurement string
	run         string
	client      influxdb2.Client // owned client
}

// NewInflux returns a recorder that writes points of the given measurement
// with w.
//
func NewInflux(w PointWriter, measurement string) *Influx {
	return &Influx{w: w, measurement: measurement, run: NewRunID()}
}

// DialInflux connects to the InfluxDB server at url and returns a recorder that
// writes to the given organization and bucket. Write errors are logged to l.
//
func DialInflux(url, token, org, bucket, measurement string, l *slog.Logger) (*Influx, error) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), influxPingTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "influxdb ping")
	}
	if !ok {
		client.Close()
		return nil, errors.New("influxdb server not healthy")
	}

	wapi := client.WriteAPI(org, bucket)
	go func() {
		for err := range wapi.Errors() {
			l.Warn("trace write failed", "error", err)
		}
	}()

	r := NewInflux(wapi, measurement)
	r.client = client
	return r, nil
}

// Run returns the run identifier used as a tag.
//
func (r *Influx) Run() string { return r.run }

// Record implements devsim.Recorder.
//
func (r *Influx) Record(t devsim.Transition) {
	r.w.WritePoint(write.NewPoint(
		r.measurement,
		map[string]string{
			"run":    r.run,
			"device": t.Device,
			"pin":    t.Pin,
		},
		map[string]interface{}{
			"state": t.State,
			"pass":  int64(t.Pass),
		},
		time.Now(),
	))
}

// Close flushes pending points and closes the client if it was created by
// DialInflux.
//
func (r *Influx) Close() error {
	r.w.Flush()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
