// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"strconv"

	"github.com/db47h/devsim"
)

// probe is a magic part calling a function on every pass.
//
type probe struct {
	fn func(d *devsim.Device)
}

func (p *probe) Build(d *devsim.Device) error {
	d.MarkDriven()
	return nil
}

func (p *probe) Solve(d *devsim.Device) { p.fn(d) }

func probePart(name string, in, out []string, fn func(d *devsim.Device)) devsim.PartFn {
	return func(parent *devsim.Device, conns string) (*devsim.Device, error) {
		return devsim.New(parent, devsim.Config{Name: name, Kind: devsim.Magic, Inputs: in, Outputs: out},
			&probe{fn}, conns)
	}
}

// Input creates a function based input.
//
//	Outputs: out
//	Function: out = f()
//
func Input(f func() bool) devsim.PartFn {
	return probePart("Input", nil, []string{pOut}, func(d *devsim.Device) {
		d.Set(0, f())
	})
}

// Output creates an output or probe. The fn function is
// called with the named pin state on every pass.
//
//	Inputs: in
//	Function: f(in)
//
func Output(f func(bool)) devsim.PartFn {
	return probePart("Output", []string{pIn}, nil, func(d *devsim.Device) {
		f(d.Get(0))
	})
}

// InputN creates an input bus of the given bits size.
//
//	Outputs: out[bits]
//	Function: out = f()
//
func InputN(bits int, f func() uint64) devsim.PartFn {
	return probePart("INPUT"+strconv.Itoa(bits), nil, []string{bus(pOut, bits)}, func(d *devsim.Device) {
		d.SetBus(d.Bus(pOut), f())
	})
}

// OutputN creates an output bus of the given bits size.
//
//	Inputs: in[bits]
//	Function: f(in)
//
func OutputN(bits int, f func(uint64)) devsim.PartFn {
	return probePart("OUTPUT"+strconv.Itoa(bits), []string{bus(pIn, bits)}, nil, func(d *devsim.Device) {
		f(d.GetBus(d.Bus(pIn)))
	})
}
