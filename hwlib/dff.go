// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/devsim"

type flipFlop struct {
	Clk   int `hw:"in"`
	In    int `hw:"in"`
	Out   int `hw:"out"`
	state bool
}

func (f *flipFlop) Update(d *devsim.Device) {
	if d.Rising(f.Clk) {
		f.state = d.Get(f.In)
		d.Set(f.Out, f.state)
	}
}

var dff = devsim.MakePart(&flipFlop{})

// DFF returns a clocked data flip flop.
//
//	Inputs: clk, in
//	Outputs: out
//	Function: out(t) = in(t-1) // where t is the current clock cycle.
//
func DFF(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return dff(parent, conns)
}
