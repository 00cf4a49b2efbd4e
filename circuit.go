// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import (
	"io"
	"log/slog"

	"github.com/pkg/errors"
)

// DefaultMaxPasses is the default bound on the number of propagation passes
// run by Stabilise.
//
const DefaultMaxPasses = 1000

// A Transition is a state change of a pin of a monitored device.
//
type Transition struct {
	Pass   uint64
	Device string
	Pin    string
	State  bool
}

// A Recorder receives pin transitions of monitored devices.
//
type Recorder interface {
	Record(t Transition)
}

// An Option configures a Circuit.
//
type Option func(c *Circuit)

// MaxPasses sets the maximum number of passes that Stabilise will run before
// giving up.
//
func MaxPasses(n int) Option {
	return func(c *Circuit) {
		if n > 0 {
			c.maxPasses = n
		}
	}
}

// WithRecorder sets the Recorder for pin transitions of monitored devices.
//
func WithRecorder(r Recorder) Option {
	return func(c *Circuit) { c.rec = r }
}

// WithLogger sets the circuit logger.
//
func WithLogger(l *slog.Logger) Option {
	return func(c *Circuit) {
		if l != nil {
			c.log = l
		}
	}
}

// Circuit is a runnable circuit simulation.
//
// Pins connected together share a wire. Wire states are double buffered: a
// propagation pass reads the current frame and writes the next one, so the
// order in which devices are visited does not matter.
//
type Circuit struct {
	cur     []bool // wire states, current frame
	next    []bool // wire states, next frame
	changed []bool // wires that changed during the last commit

	devs      []*Device
	root      *Device
	monitored []*Device

	maxPasses int
	pass      uint64
	rec       Recorder
	log       *slog.Logger
	disposed  bool
}

// NewCircuit creates a new circuit whose root device is configured with cfg
// and implemented by impl. The root device pins are the circuit's primary
// inputs and outputs.
//
// Callers must make sure to call Dispose once the circuit is no longer needed
// in order to release resources held by magic devices.
//
func NewCircuit(cfg Config, impl Impl, opts ...Option) (*Circuit, error) {
	c := &Circuit{
		maxPasses: DefaultMaxPasses,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	// constant wires
	for i := 0; i < wireCount; i++ {
		c.allocWire()
	}
	c.seed(wireTrue, true)

	root, err := c.newDevice(nil, cfg, impl, "")
	if err != nil {
		c.Dispose()
		return nil, err
	}
	c.root = root
	return c, nil
}

func (c *Circuit) allocWire() int {
	w := len(c.cur)
	c.cur = append(c.cur, false)
	c.next = append(c.next, false)
	c.changed = append(c.changed, false)
	return w
}

func (c *Circuit) seed(w int, v bool) {
	c.cur[w] = v
	c.next[w] = v
}

// commit makes the next frame current and updates change flags. It returns
// true if any wire changed state.
//
func (c *Circuit) commit() bool {
	if c.next[wireFalse] || !c.next[wireTrue] {
		panic("true or false constants have been overwritten")
	}
	dirty := false
	for w, v := range c.next {
		ch := c.cur[w] != v
		c.changed[w] = ch
		if ch {
			c.cur[w] = v
			dirty = true
		}
	}
	if dirty && c.rec != nil {
		c.record()
	}
	return dirty
}

func (c *Circuit) record() {
	for _, d := range c.monitored {
		for i := range d.pins {
			p := &d.pins[i]
			if w := p.wire(); c.changed[w] {
				c.rec.Record(Transition{Pass: c.pass, Device: d.path, Pin: p.Name, State: c.cur[w]})
			}
		}
	}
}

// solve runs one pass over the subtree rooted at d.
//
func (c *Circuit) solve(d *Device) {
	if d.solver != nil {
		d.solver.Solve(d)
		return
	}
	for i := range d.gates {
		d.gates[i].eval(c)
	}
	for _, id := range d.children {
		c.solve(c.devs[id])
	}
}

// stabilise commits pending state changes then runs passes over the subtree
// rooted at d until no wire changes.
//
func (c *Circuit) stabilise(d *Device) (int, error) {
	c.commit()
	for n := 1; ; n++ {
		if n > c.maxPasses {
			c.log.Warn("circuit does not stabilise", "device", d.path, "passes", c.maxPasses)
			return c.maxPasses, errors.Wrapf(ErrNoConvergence, "%s: no fixed point after %d passes", d.path, c.maxPasses)
		}
		c.solve(d)
		c.pass++
		if !c.commit() {
			c.log.Debug("stable", "device", d.path, "passes", n)
			return n, nil
		}
	}
}

// Root returns the root device.
//
func (c *Circuit) Root() *Device { return c.root }

func (c *Circuit) primaryInput(i int) *Pin {
	p := &c.root.pins[i]
	if p.Dir != In {
		panic("devsim: " + c.root.path + ": " + p.Name + " is not an input pin")
	}
	return p
}

// Set sets the state of the root input pin i. The change takes effect on the
// next call to Stabilise.
//
func (c *Circuit) Set(i int, v bool) {
	for _, w := range c.primaryInput(i).wires {
		c.next[w] = v
	}
}

// Toggle toggles the state of the root input pin i.
//
func (c *Circuit) Toggle(i int) {
	c.Set(i, !c.next[c.primaryInput(i).wire()])
}

// SetBus sets the value of a root input bus.
//
func (c *Circuit) SetBus(b Bus, v uint64) { encode(b, v, c.Set) }

// Get returns the state of the root pin i.
//
func (c *Circuit) Get(i int) bool { return c.root.Get(i) }

// GetBus returns the value of a root bus.
//
func (c *Circuit) GetBus(b Bus) uint64 { return c.root.GetBus(b) }

// Stabilise applies pending input changes and runs the simulation until the
// circuit reaches a stable state. It returns the number of passes run.
//
// If the circuit does not stabilise within the maximum number of passes, the
// returned error has ErrNoConvergence as its cause.
//
func (c *Circuit) Stabilise() (int, error) {
	if c.disposed {
		return 0, errors.New("circuit disposed")
	}
	return c.stabilise(c.root)
}

// Cycle runs a full clock cycle on the root input pin clk: rising edge,
// stabilise, falling edge, stabilise.
//
func (c *Circuit) Cycle(clk int) error {
	c.Set(clk, true)
	if _, err := c.Stabilise(); err != nil {
		return err
	}
	c.Set(clk, false)
	_, err := c.Stabilise()
	return err
}

// Passes returns the total number of passes run since the circuit was
// created.
//
func (c *Circuit) Passes() uint64 { return c.pass }

// Size returns the device count in the circuit.
//
func (c *Circuit) Size() int { return len(c.devs) }

// Wires returns the wire count, including the true and false constants.
//
func (c *Circuit) Wires() int { return len(c.cur) }

// Device returns the device with the given ID.
//
func (c *Circuit) Device(id ID) *Device { return c.devs[id] }

// Walk calls fn for each device of the circuit in depth-first order, parents
// before children. If fn returns false, the children of that device are
// skipped.
//
func (c *Circuit) Walk(fn func(d *Device) bool) {
	if c.root != nil {
		c.walk(c.root, fn)
	}
}

func (c *Circuit) walk(d *Device, fn func(d *Device) bool) {
	if !fn(d) {
		return
	}
	for _, id := range d.children {
		c.walk(c.devs[id], fn)
	}
}

// Dispose releases the resources held by devices, in reverse creation order.
// Device implementations that also implement io.Closer are closed. Dispose
// returns the first error encountered.
//
func (c *Circuit) Dispose() error {
	if c.disposed {
		return nil
	}
	c.disposed = true
	var err error
	for i := len(c.devs) - 1; i >= 0; i-- {
		cl, ok := c.devs[i].impl.(io.Closer)
		if !ok {
			continue
		}
		if e := cl.Close(); e != nil {
			c.log.Error("device close failed", "device", c.devs[i].path, "error", e)
			if err == nil {
				err = errors.Wrap(e, c.devs[i].path)
			}
		}
	}
	return err
}
