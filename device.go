// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import (
	"strconv"

	"github.com/db47h/devsim/internal/hdl"
	"github.com/pkg/errors"
)

// ID is a device handle. It indexes the device table of the Circuit that owns
// the device.
//
type ID int32

// NoParent is the parent ID of a circuit's root device.
//
const NoParent ID = -1

// Kind is a device type tag.
//
type Kind uint8

// Device kinds.
//
const (
	// Ordinary devices are built from child devices and gate primitives.
	Ordinary Kind = iota
	// Magic devices have no internals and compute their outputs in Solve.
	Magic
)

func (k Kind) String() string {
	if k == Magic {
		return "magic"
	}
	return "ordinary"
}

// Lifecycle is the construction state of a device.
//
type Lifecycle uint8

// Device lifecycle states.
//
const (
	Unconfigured Lifecycle = iota
	Configured
	Built
	Stable
)

var lifecycleNames = [...]string{"unconfigured", "configured", "built", "stable"}

func (l Lifecycle) String() string { return lifecycleNames[l] }

// Config holds the construction parameters of a device.
//
type Config struct {
	// Device name, local to its parent.
	Name string
	// Device kind. Magic devices must be given a Solver implementation.
	Kind Kind
	// Input and output pin declarations. Each entry is a comma separated
	// list of pin names or bus declarations. For example:
	//
	//	Inputs: []string{"clk, read, write", "addr[8]"}
	//
	// declares pins clk, read, write and addr0 through addr7, plus a bus
	// named "addr".
	Inputs  []string
	Outputs []string
	// Monitored devices report their pin transitions to the circuit's
	// Recorder.
	Monitor bool
	// Initial pin states.
	Initial []State
}

// Impl is the interface implemented by all devices. Build is called once
// the device pins are configured. Ordinary devices create their child
// devices and gates; magic devices must call MarkDriven.
//
type Impl interface {
	Build(d *Device) error
}

// A Solver is the implementation of a magic device.
//
// Solve is called once per propagation pass. It reads the current input
// states with Get, Changed, Rising or Falling and writes its outputs with
// Set. Writes become visible in the next pass.
//
type Solver interface {
	Impl
	Solve(d *Device)
}

// BuildFunc adapts a function to the Impl interface.
//
type BuildFunc func(d *Device) error

// Build implements Impl.
//
func (f BuildFunc) Build(d *Device) error { return f(d) }

// A PartFn creates a new device within parent and wires its pins according
// to the connection description conns. See New for the syntax of conns.
//
type PartFn func(parent *Device, conns string) (*Device, error)

// Device is a node in a circuit.
//
type Device struct {
	c        *Circuit
	id       ID
	parent   ID
	name     string
	path     string
	kind     Kind
	life     Lifecycle
	monitor  bool
	impl     Impl
	solver   Solver
	pins     []Pin
	names    map[string]int
	buses    map[string]Bus
	children []ID
	gates    []gate
	scope    *scope // only during Build
	siblings map[string]int
}

// New creates a new device as a child of parent. It must be called from the
// parent's Build method.
//
// The device pins are wired to the parent according to conns, a comma
// separated list of pin=wire assignments where pin is a pin of the new device
// and wire a pin of the parent or any internal wire name of the parent:
//
//	"a=x, b=y, out=z"
//
// Bus bits can be specified with index or ranges, and bare bus names connect
// whole buses:
//
//	"addr[0..3]=a[4..7], din=d, dout[7]=msb"
//
// Inputs can be tied to the constant wires "true" and "false". Outputs can be
// connected to several wires by repeating them.
//
// New configures the device, builds it, checks that all its pins are properly
// connected and stabilises it before returning.
//
func New(parent *Device, cfg Config, impl Impl, conns string) (*Device, error) {
	if parent == nil {
		return nil, errors.New("nil parent device")
	}
	if parent.scope == nil {
		return nil, errors.Errorf("%s: children can only be added while the device is being built", parent.path)
	}
	return parent.c.newDevice(parent, cfg, impl, conns)
}

func (c *Circuit) newDevice(parent *Device, cfg Config, impl Impl, conns string) (*Device, error) {
	d := &Device{
		c:       c,
		id:      ID(len(c.devs)),
		parent:  NoParent,
		name:    cfg.Name,
		kind:    cfg.Kind,
		monitor: cfg.Monitor,
		impl:    impl,
		names:   make(map[string]int),
		buses:   make(map[string]Bus),
	}
	if parent != nil {
		d.parent = parent.id
		d.name = parent.childName(cfg.Name)
		d.path = parent.path + "." + d.name
		parent.children = append(parent.children, d.id)
	} else {
		d.path = d.name
	}
	c.devs = append(c.devs, d)

	if cfg.Name == "" {
		return nil, configError(d, "empty device name")
	}
	if impl == nil {
		return nil, configError(d, "no implementation")
	}
	if d.kind == Magic {
		s, ok := impl.(Solver)
		if !ok {
			return nil, configError(d, "magic device does not implement Solve")
		}
		d.solver = s
	}
	if err := d.configure(cfg, parent, conns); err != nil {
		return nil, err
	}
	if err := impl.Build(d); err != nil {
		return nil, err
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	d.scope = nil
	d.life = Built
	if _, err := c.stabilise(d); err != nil {
		return nil, err
	}
	d.life = Stable
	return d, nil
}

func (d *Device) childName(name string) string {
	if d.siblings == nil {
		d.siblings = make(map[string]int)
	}
	n := d.siblings[name]
	d.siblings[name] = n + 1
	if n == 0 {
		return name
	}
	return name + "#" + strconv.Itoa(n+1)
}

// configure allocates the pins and buses and binds them to wires.
//
func (d *Device) configure(cfg Config, parent *Device, conns string) error {
	for _, s := range cfg.Inputs {
		if err := d.declare(s, In); err != nil {
			return err
		}
	}
	for _, s := range cfg.Outputs {
		if err := d.declare(s, Out); err != nil {
			return err
		}
	}

	if parent == nil {
		// primary I/O
		for i := range d.pins {
			p := &d.pins[i]
			p.wires = []int{d.c.allocWire()}
			p.Drive[External] = true
		}
	} else {
		if err := parent.scope.bind(d, conns); err != nil {
			return err
		}
		// unconnected pins get a private wire. Inputs will fail the
		// connectivity check unless explicitly marked with MarkExternal.
		for i := range d.pins {
			if p := &d.pins[i]; p.wires == nil {
				p.wires = []int{d.c.allocWire()}
				if p.Dir == Out {
					p.Drive[External] = true
				}
			}
		}
	}

	for _, s := range cfg.Initial {
		i, ok := d.names[s.Pin]
		if !ok {
			return configError(d, "initial state for unknown pin %s", s.Pin)
		}
		for _, w := range d.pins[i].wires {
			d.c.seed(w, s.Value)
		}
	}

	if d.kind == Ordinary {
		d.scope = newScope(d)
	}
	if d.monitor {
		d.c.monitored = append(d.c.monitored, d)
	}
	d.life = Configured
	return nil
}

func (d *Device) declare(s string, dir Direction) error {
	decls, err := hdl.ParseIO(s)
	if err != nil {
		return configError(d, "%v", err)
	}
	for _, dc := range decls {
		if dc.Size == 0 {
			if _, err = d.addPin(dc.Name, dir); err != nil {
				return err
			}
			continue
		}
		if _, ok := d.buses[dc.Name]; ok {
			return configError(d, "duplicate bus name %s", dc.Name)
		}
		b := make(Bus, dc.Size)
		for i := range b {
			if b[i], err = d.addPin(BusPinName(dc.Name, i), dir); err != nil {
				return err
			}
		}
		d.buses[dc.Name] = b
	}
	return nil
}

func (d *Device) addPin(name string, dir Direction) (int, error) {
	if name == True || name == False {
		return 0, configError(d, "reserved pin name %s", name)
	}
	if _, ok := d.names[name]; ok {
		return 0, configError(d, "duplicate pin name %s", name)
	}
	i := len(d.pins)
	d.pins = append(d.pins, Pin{Name: name, Dir: dir, Index: i})
	d.names[name] = i
	return i, nil
}

// check verifies the drive slots of all pins once the device is built.
//
func (d *Device) check() error {
	if s := d.scope; s != nil {
		if err := s.check(); err != nil {
			return err
		}
		for i := range d.pins {
			p := &d.pins[i]
			switch p.Dir {
			case In:
				if len(s.readers[p.wire()]) > 0 {
					p.Drive[Internal] = true
				}
			case Out:
				if _, ok := s.drivers[p.wire()]; ok {
					p.Drive[Internal] = true
				}
			}
		}
	}
	for i := range d.pins {
		p := &d.pins[i]
		switch p.Dir {
		case In:
			if !p.Drive[External] {
				return connError(d, "input pin %s not connected", p.Name)
			}
			// unused inputs are terminated
			p.Drive[Internal] = true
		case Out:
			if !p.Drive[Internal] {
				return connError(d, "output pin %s not driven", p.Name)
			}
			p.Drive[External] = true
		}
	}
	return nil
}

// MarkDriven marks the named pins, or all pins if none is given, as driven
// from inside the device. Magic devices have no internal wiring and must call
// it from Build for all the outputs they drive.
//
func (d *Device) MarkDriven(names ...string) {
	if d.kind != Magic {
		panic("devsim: " + d.path + ": MarkDriven called on an ordinary device")
	}
	if len(names) == 0 {
		for i := range d.pins {
			d.pins[i].Drive[Internal] = true
		}
		return
	}
	for _, n := range names {
		d.pins[d.Pin(n)].Drive[Internal] = true
	}
}

// MarkExternal marks unconnected input pins as intentionally left open. They
// keep their initial state.
//
func (d *Device) MarkExternal(names ...string) {
	for _, n := range names {
		p := &d.pins[d.Pin(n)]
		if p.Dir != In {
			panic("devsim: " + d.path + ": MarkExternal called on output pin " + n)
		}
		p.Drive[External] = true
	}
}

// ID returns the device handle.
//
func (d *Device) ID() ID { return d.id }

// Name returns the device name.
//
func (d *Device) Name() string { return d.name }

// Path returns the fully qualified device name.
//
func (d *Device) Path() string { return d.path }

// Kind returns the device kind.
//
func (d *Device) Kind() Kind { return d.kind }

// State returns the lifecycle state of the device.
//
func (d *Device) State() Lifecycle { return d.life }

// Monitored returns true if the device reports its pin transitions.
//
func (d *Device) Monitored() bool { return d.monitor }

// Circuit returns the circuit owning the device.
//
func (d *Device) Circuit() *Circuit { return d.c }

// Impl returns the device implementation.
//
func (d *Device) Impl() Impl { return d.impl }

// Parent returns the parent device, or nil for the root device.
//
func (d *Device) Parent() *Device {
	if d.parent == NoParent {
		return nil
	}
	return d.c.devs[d.parent]
}

// Children returns the child devices.
//
func (d *Device) Children() []*Device {
	cs := make([]*Device, len(d.children))
	for i, id := range d.children {
		cs[i] = d.c.devs[id]
	}
	return cs
}

// NumPins returns the pin count.
//
func (d *Device) NumPins() int { return len(d.pins) }

// PinAt returns a copy of the pin with the given port index.
//
func (d *Device) PinAt(i int) Pin { return d.pins[i] }

// Pins returns a copy of the pin table.
//
func (d *Device) Pins() []Pin {
	ps := make([]Pin, len(d.pins))
	copy(ps, d.pins)
	return ps
}

// Pin returns the port index of the named pin.
// This function panics if the pin does not exist.
//
func (d *Device) Pin(name string) int {
	i, ok := d.names[name]
	if !ok {
		panic("devsim: " + d.path + ": pin " + name + " does not exist")
	}
	return i
}

// Lookup returns the port index of the named pin.
//
func (d *Device) Lookup(name string) (int, bool) {
	i, ok := d.names[name]
	return i, ok
}

// Bus returns the index table of the named bus.
// This function panics if the bus does not exist.
//
func (d *Device) Bus(name string) Bus {
	b, ok := d.buses[name]
	if !ok {
		panic("devsim: " + d.path + ": bus " + name + " does not exist")
	}
	return b
}

// LookupBus returns the index table of the named bus.
//
func (d *Device) LookupBus(name string) (Bus, bool) {
	b, ok := d.buses[name]
	return b, ok
}

// Get returns the state of pin i.
//
func (d *Device) Get(i int) bool { return d.c.cur[d.pins[i].wire()] }

// Changed returns true if pin i changed state during the last pass.
//
func (d *Device) Changed(i int) bool { return d.c.changed[d.pins[i].wire()] }

// Rising returns true on the rising edge of pin i.
//
func (d *Device) Rising(i int) bool {
	w := d.pins[i].wire()
	return d.c.changed[w] && d.c.cur[w]
}

// Falling returns true on the falling edge of pin i.
//
func (d *Device) Falling(i int) bool {
	w := d.pins[i].wire()
	return d.c.changed[w] && !d.c.cur[w]
}

// Set sets the state of output pin i. The new state is visible on the next
// pass.
//
func (d *Device) Set(i int, v bool) {
	p := &d.pins[i]
	if p.Dir == In {
		panic("devsim: " + d.path + ": write to input pin " + p.Name)
	}
	for _, w := range p.wires {
		d.c.next[w] = v
	}
}

// GetBus returns the value of bus b.
//
func (d *Device) GetBus(b Bus) uint64 { return decode(b, d.Get) }

// SetBus sets the value of output bus b.
//
func (d *Device) SetBus(b Bus, v uint64) { encode(b, v, d.Set) }
