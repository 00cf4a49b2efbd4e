// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

// Direction is a pin direction.
//
type Direction uint8

// Pin directions.
//
const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Drive slot indices in Pin.Drive.
//
const (
	External = 0 // the pin is attached on the outside of its device
	Internal = 1 // the pin is attached on the inside of its device
)

// Pin is an entry of a device's pin table.
//
// The pin state is not stored in the Pin itself but in the circuit's wire
// frames: connected pins share the same wire. Use Device.Get and
// Device.Changed to read them.
//
type Pin struct {
	Name  string
	Dir   Direction
	Index int // port index, dense and stable for the device lifetime
	Drive [2]bool

	// wires driven or read by this pin. Inputs have exactly one. Outputs
	// fanned out to several wires of their host have more.
	wires []int
}

// Built returns true if both drive slots are satisfied.
//
func (p *Pin) Built() bool { return p.Drive[External] && p.Drive[Internal] }

func (p *Pin) wire() int { return p.wires[0] }

// State is an initial pin state override.
//
type State struct {
	Pin   string
	Value bool
}

// An Endpoint identifies a pin of a device in a circuit. It is the
// descriptor used to record which pins are attached to a wire.
//
type Endpoint struct {
	Device ID
	Pin    int
}
