// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import (
	"sort"
	"strconv"

	"github.com/db47h/devsim/internal/hdl"
)

// Constant wire names.
//
const (
	True  = "true"
	False = "false"
)

const (
	wireFalse = iota
	wireTrue
	wireCount
)

// scope tracks the wiring inside an ordinary device while it is being built.
// Wire names are those of the host pins plus any internal wire name used
// in connection descriptions.
//
type scope struct {
	host    *Device
	names   map[string]int
	drivers map[int]Endpoint
	readers map[int][]Endpoint
}

func newScope(d *Device) *scope {
	s := &scope{
		host:    d,
		names:   map[string]int{False: wireFalse, True: wireTrue},
		drivers: make(map[int]Endpoint),
		readers: make(map[int][]Endpoint),
	}
	for i := range d.pins {
		s.names[d.pins[i].Name] = d.pins[i].wire()
	}
	return s
}

// wire returns the wire with the given name, allocating a new one if needed.
//
func (s *scope) wire(name string) int {
	w, ok := s.names[name]
	if !ok {
		w = s.host.c.allocWire()
		s.names[name] = w
	}
	return w
}

// hostPin returns the host pin with the given name.
//
func (s *scope) hostPin(name string) *Pin {
	if i, ok := s.host.names[name]; ok {
		return &s.host.pins[i]
	}
	return nil
}

func (s *scope) endpointName(ep Endpoint) string {
	d := s.host.c.devs[ep.Device]
	if ep.Pin < 0 {
		return "gate #" + strconv.Itoa(-ep.Pin) + " of " + d.name
	}
	return d.name + "." + d.pins[ep.Pin].Name
}

// drive registers ep as the driver of the named wire and returns the list of
// wires the driver must write to.
//
func (s *scope) drive(ep Endpoint, what, name string) ([]int, error) {
	if name == True || name == False {
		return nil, connError(s.host, "%s: output pin connected to constant %s input", what, name)
	}
	hp := s.hostPin(name)
	if hp != nil && hp.Dir == In {
		return nil, connError(s.host, "%s: output pin connected to input pin %s", what, name)
	}
	w := s.wire(name)
	if drv, ok := s.drivers[w]; ok {
		return nil, connError(s.host, "%s: wire %s already driven by %s", what, name, s.endpointName(drv))
	}
	s.drivers[w] = ep
	if hp != nil {
		// host outputs fanned out to several wires of its own parent.
		return hp.wires, nil
	}
	return []int{w}, nil
}

func (s *scope) read(ep Endpoint, name string) int {
	w := s.wire(name)
	s.readers[w] = append(s.readers[w], ep)
	return w
}

// bind wires the pins of child d according to the connection description
// conns.
//
func (s *scope) bind(d *Device, conns string) error {
	p := hdl.Parser{Input: conns}
	for {
		a, err := p.Next()
		if err != nil {
			return configError(d, "%v", err)
		}
		if a == nil {
			return nil
		}
		lhs, err := d.expandPins(a.LHS)
		if err != nil {
			return err
		}
		rhs := expandWires(a.RHS, len(lhs))
		if len(rhs) == 1 && len(lhs) > 1 && (rhs[0] == True || rhs[0] == False) {
			for len(rhs) < len(lhs) {
				rhs = append(rhs, rhs[0])
			}
		}
		if len(rhs) != len(lhs) {
			return connError(d, "pin count mismatch in pin mapping %s", p.Input)
		}
		for i := range lhs {
			if err = s.attach(d, lhs[i], rhs[i]); err != nil {
				return err
			}
		}
	}
}

func (s *scope) attach(d *Device, i int, name string) error {
	p := &d.pins[i]
	ep := Endpoint{d.id, i}
	if p.Dir == In {
		if p.wires != nil {
			return connError(s.host, "%s.%s: input pin connected to more than one wire", d.name, p.Name)
		}
		p.wires = []int{s.read(ep, name)}
		p.Drive[External] = true
		return nil
	}
	ws, err := s.drive(ep, d.name+"."+p.Name, name)
	if err != nil {
		return err
	}
	p.wires = append(p.wires, ws...)
	p.Drive[External] = true
	return nil
}

// check verifies that all wires read inside the host are driven.
//
func (s *scope) check() error {
	sources := map[int]bool{wireFalse: true, wireTrue: true}
	for i := range s.host.pins {
		if p := &s.host.pins[i]; p.Dir == In {
			sources[p.wire()] = true
		}
	}
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w := s.names[n]
		if len(s.readers[w]) == 0 || sources[w] {
			continue
		}
		if _, ok := s.drivers[w]; !ok {
			return connError(s.host, "wire %s not connected to any output", n)
		}
	}
	return nil
}

func (d *Device) expandPins(v interface{}) ([]int, error) {
	var names []string
	switch p := v.(type) {
	case hdl.Pin:
		if i, ok := d.names[p.Name]; ok {
			return []int{i}, nil
		}
		if b, ok := d.buses[p.Name]; ok {
			return append([]int(nil), b...), nil
		}
		names = []string{p.Name}
	case hdl.PinIndex:
		names = []string{BusPinName(p.Name, p.Index)}
	case hdl.PinRange:
		for i := p.Start; i <= p.End; i++ {
			names = append(names, BusPinName(p.Name, i))
		}
	}
	out := make([]int, len(names))
	for i, n := range names {
		idx, ok := d.names[n]
		if !ok {
			return nil, connError(d, "invalid pin name %s for part %s", n, d.name)
		}
		out[i] = idx
	}
	return out, nil
}

// expandWires expands the wire side of a pin assignment. A bare wire name
// assigned to n > 1 pins is expanded to a bus.
//
func expandWires(v interface{}, n int) []string {
	switch p := v.(type) {
	case hdl.Pin:
		if n <= 1 || p.Name == True || p.Name == False {
			return []string{p.Name}
		}
		out := make([]string, n)
		for i := range out {
			out[i] = BusPinName(p.Name, i)
		}
		return out
	case hdl.PinIndex:
		return []string{BusPinName(p.Name, p.Index)}
	case hdl.PinRange:
		out := make([]string, 0, p.End-p.Start+1)
		for i := p.Start; i <= p.End; i++ {
			out = append(out, BusPinName(p.Name, i))
		}
		return out
	}
	return nil
}

// GateFunc computes the output of a gate from its inputs.
//
type GateFunc func(in []bool) bool

type gate struct {
	fn  GateFunc
	in  []int
	out []int
	buf []bool
}

func (g *gate) eval(c *Circuit) {
	for i, w := range g.in {
		g.buf[i] = c.cur[w]
	}
	v := g.fn(g.buf)
	for _, w := range g.out {
		c.next[w] = v
	}
}

// Gate adds a gate primitive to an ordinary device. Its output is driven by
// fn applied to the current state of the input wires. Wire names are either
// pin names of the device or internal wire names.
//
// Gate must be called from Build.
//
func (d *Device) Gate(fn GateFunc, out string, in ...string) error {
	s := d.scope
	if s == nil {
		return configError(d, "gates can only be added while the device is being built")
	}
	g := gate{fn: fn, in: make([]int, len(in)), buf: make([]bool, len(in))}
	ep := Endpoint{d.id, -1 - len(d.gates)}
	for i, n := range in {
		g.in[i] = s.read(ep, n)
	}
	ws, err := s.drive(ep, "gate #"+strconv.Itoa(len(d.gates)+1), out)
	if err != nil {
		return err
	}
	g.out = ws
	d.gates = append(d.gates, g)
	return nil
}
