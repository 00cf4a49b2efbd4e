// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

// An Incantation tags an event with a side effect to run when it fires.
//
type Incantation int

// Cond is an event co-condition: pin Pin must be in state State.
//
type Cond struct {
	Pin   string
	State bool
}

// An Event describes an output change of a magic device. The event fires
// during a pass where all of its conditions hold and at least one of the
// condition pins changed state during the previous commit. When it fires,
// Next[i] is written to bit i of Target, a pin or bus name.
//
type Event struct {
	Target string
	Next   []bool
	When   []Cond
	Incantation
}

// A Handler runs the side effect of an event.
//
type Handler func(d *Device, e *Event)

// EventTable is a Solver that drives a magic device from a table of events.
//
// Handlers maps incantations to side effects. Events with an incantation
// missing from Handlers only update their target.
//
type EventTable struct {
	Events   []Event
	Handlers map[Incantation]Handler

	compiled []event
}

type event struct {
	target Bus
	when   []int
	state  []bool
}

// Build implements Impl. It resolves pin names and marks the device as driven.
//
func (t *EventTable) Build(d *Device) error {
	t.compiled = make([]event, len(t.Events))
	for i := range t.Events {
		e := &t.Events[i]
		ce := &t.compiled[i]
		if b, ok := d.LookupBus(e.Target); ok {
			ce.target = b
		} else if p, ok := d.Lookup(e.Target); ok {
			ce.target = Bus{p}
		} else {
			return configError(d, "event %d: unknown target %s", i, e.Target)
		}
		for _, p := range ce.target {
			if d.pins[p].Dir != Out {
				return configError(d, "event %d: target %s is not an output", i, e.Target)
			}
		}
		if len(e.Next) != len(ce.target) {
			return configError(d, "event %d: %d target states for %d pins", i, len(e.Next), len(ce.target))
		}
		if len(e.When) == 0 {
			return configError(d, "event %d: no condition", i)
		}
		for _, c := range e.When {
			p, ok := d.Lookup(c.Pin)
			if !ok {
				return configError(d, "event %d: unknown condition pin %s", i, c.Pin)
			}
			ce.when = append(ce.when, p)
			ce.state = append(ce.state, c.State)
		}
	}
	d.MarkDriven()
	return nil
}

// Solve implements Solver.
//
func (t *EventTable) Solve(d *Device) {
	for i := range t.compiled {
		ce := &t.compiled[i]
		if !ce.fires(d) {
			continue
		}
		e := &t.Events[i]
		for bit, p := range ce.target {
			d.Set(p, e.Next[bit])
		}
		if h := t.Handlers[e.Incantation]; h != nil {
			h(d, e)
		}
	}
}

func (e *event) fires(d *Device) bool {
	changed := false
	for i, p := range e.when {
		if d.Get(p) != e.state[i] {
			return false
		}
		changed = changed || d.Changed(p)
	}
	return changed
}
