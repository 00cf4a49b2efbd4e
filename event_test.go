package devsim_test

import (
	"strings"
	"testing"

	"github.com/db47h/devsim"
	"github.com/pkg/errors"
)

const (
	latched devsim.Incantation = iota + 1
	cleared
)

func TestEventTable(t *testing.T) {
	var fired []devsim.Incantation
	tbl := &devsim.EventTable{
		Events: []devsim.Event{
			{Target: "q", Next: []bool{true, false}, When: []devsim.Cond{{Pin: "clk", State: true}, {Pin: "d", State: true}}, Incantation: latched},
			{Target: "q", Next: []bool{false, true}, When: []devsim.Cond{{Pin: "clk", State: true}, {Pin: "d", State: false}}, Incantation: cleared},
		},
		Handlers: map[devsim.Incantation]devsim.Handler{
			latched: func(d *devsim.Device, e *devsim.Event) { fired = append(fired, e.Incantation) },
			cleared: func(d *devsim.Device, e *devsim.Event) { fired = append(fired, e.Incantation) },
		},
	}
	c, err := devsim.NewCircuit(devsim.Config{Name: "top", Inputs: []string{"clk, d"}, Outputs: []string{"q[2]"}},
		devsim.BuildFunc(func(d *devsim.Device) error {
			_, err := devsim.New(d, devsim.Config{Name: "latch", Kind: devsim.Magic, Inputs: []string{"clk, d"}, Outputs: []string{"q[2]"}},
				tbl, "clk=clk, d=d, q=q")
			return err
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	r := c.Root()
	clk, d, q := r.Pin("clk"), r.Pin("d"), r.Bus("q")
	step := func(vclk, vd bool) uint64 {
		c.Set(clk, vclk)
		c.Set(d, vd)
		if _, err := c.Stabilise(); err != nil {
			t.Fatal(err)
		}
		return c.GetBus(q)
	}

	td := []struct {
		clk, d bool
		q      uint64
		fired  int
	}{
		{false, true, 0, 0}, // clock low, no event
		{true, true, 1, 1},  // clk rises with d high
		{true, true, 1, 1},  // nothing changed
		{true, false, 2, 2}, // d changes while clk high
		{false, true, 2, 2}, // clk low
	}
	for i, s := range td {
		if got := step(s.clk, s.d); got != s.q {
			t.Fatalf("step %d: expected q = %d, got %d", i, s.q, got)
		}
		if len(fired) != s.fired {
			t.Fatalf("step %d: expected %d events, got %v", i, s.fired, fired)
		}
	}
	if fired[0] != latched || fired[1] != cleared {
		t.Fatalf("bad incantations %v", fired)
	}
}

func TestEventTable_errors(t *testing.T) {
	td := []struct {
		name string
		ev   devsim.Event
		err  string
	}{
		{"unknown_target", devsim.Event{Target: "x", Next: []bool{true}, When: []devsim.Cond{{Pin: "a"}}}, "unknown target x"},
		{"input_target", devsim.Event{Target: "a", Next: []bool{true}, When: []devsim.Cond{{Pin: "a"}}}, "target a is not an output"},
		{"width", devsim.Event{Target: "out", Next: []bool{true, true}, When: []devsim.Cond{{Pin: "a"}}}, "2 target states for 1 pins"},
		{"no_cond", devsim.Event{Target: "out", Next: []bool{true}}, "no condition"},
		{"unknown_cond", devsim.Event{Target: "out", Next: []bool{true}, When: []devsim.Cond{{Pin: "b"}}}, "unknown condition pin b"},
	}
	for _, d := range td {
		d := d
		t.Run(d.name, func(t *testing.T) {
			_, err := devsim.NewCircuit(devsim.Config{Name: "ev", Kind: devsim.Magic, Inputs: []string{"a"}, Outputs: []string{"out"}},
				&devsim.EventTable{Events: []devsim.Event{d.ev}})
			if errors.Cause(err) != devsim.ErrConfig || !strings.Contains(err.Error(), d.err) {
				t.Fatalf("got error %v, expected %q", err, d.err)
			}
		})
	}
}
