// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/db47h/devsim"
)

type probe struct {
	label string
	pin   int
}

// panel is a text front panel showing the state of root pins. It prints a
// line each time a probed pin changes.
//
type panel struct {
	w      io.Writer
	probes []probe
	last   []bool
	shown  bool
}

// newPanel parses probe descriptors of the form "label,pin". Malformed
// descriptors and unknown pins are logged and skipped.
//
func newPanel(w io.Writer, root *devsim.Device, descs []string, log *slog.Logger) *panel {
	p := &panel{w: w}
	for _, desc := range descs {
		f := strings.Split(desc, ",")
		if len(f) != 2 {
			log.Warn("malformed probe descriptor, ignored", "probe", desc, "fields", len(f))
			continue
		}
		label, name := strings.TrimSpace(f[0]), strings.TrimSpace(f[1])
		if label == "" {
			log.Warn("probe without label, ignored", "probe", desc)
			continue
		}
		i, ok := root.Lookup(name)
		if !ok {
			log.Warn("probe on unknown pin, ignored", "probe", desc, "pin", name)
			continue
		}
		p.probes = append(p.probes, probe{label, i})
	}
	p.last = make([]bool, len(p.probes))
	return p
}

// update prints the probes if any of them changed since the last call. It
// returns true if a line was printed.
//
func (p *panel) update(cycle int, get func(int) bool) bool {
	if len(p.probes) == 0 {
		return false
	}
	changed := !p.shown
	for i, pr := range p.probes {
		if v := get(pr.pin); v != p.last[i] {
			p.last[i] = v
			changed = true
		}
	}
	if !changed {
		return false
	}
	p.shown = true
	var b strings.Builder
	fmt.Fprintf(&b, "%6d:", cycle)
	for i, pr := range p.probes {
		v := 0
		if p.last[i] {
			v = 1
		}
		fmt.Fprintf(&b, " %s=%d", pr.label, v)
	}
	b.WriteByte('\n')
	io.WriteString(p.w, b.String())
	return true
}
