// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"strconv"

	"github.com/db47h/devsim"
)

var hAdder = &spec{
	name: "HalfAdder",
	in:   []string{pA, pB},
	out:  []string{"s", "c"},
	build: func(d *devsim.Device) error {
		if _, err := Xor(d, "a=a, b=b, out=s"); err != nil {
			return err
		}
		_, err := And(d, "a=a, b=b, out=c")
		return err
	}}

// HalfAdder returns a half adder.
//
//	Inputs: a, b
//	Outputs: s, c
//	Function: s = lsb(a + b)
//	          c = msb(a + b)
//
func HalfAdder(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return hAdder.part(parent, conns)
}

var adder = &spec{
	name: "FullAdder",
	in:   []string{pA, pB, "cin"},
	out:  []string{"s", "cout"},
	build: func(d *devsim.Device) error {
		for _, p := range []struct {
			fn    devsim.PartFn
			conns string
		}{
			{HalfAdder, "a=a, b=b, s=s0, c=c0"},
			{HalfAdder, "a=s0, b=cin, s=s, c=c1"},
			{Or, "a=c0, b=c1, out=cout"},
		} {
			if _, err := p.fn(d, p.conns); err != nil {
				return err
			}
		}
		return nil
	}}

// FullAdder returns a 3 bit adder.
//
//	Inputs: a, b, cin
//	Outputs: s, cout
//	Function: s = lsb(a + b + cin)
//	          cout = msb(a + b + cin)
//
func FullAdder(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return adder.part(parent, conns)
}

// AdderN returns a N-bits ripple carry adder.
//
//	Inputs: a[bits], b[bits]
//	Outputs: out[bits], c
//
func AdderN(bits int) devsim.PartFn {
	s := &spec{
		name: "Adder" + strconv.Itoa(bits),
		in:   []string{bus(pA, bits), bus(pB, bits)},
		out:  []string{bus(pOut, bits), "c"},
		build: func(d *devsim.Device) error {
			cin := devsim.False
			for i := 0; i < bits; i++ {
				cout := "c"
				if i < bits-1 {
					cout = "carry" + strconv.Itoa(i)
				}
				n := strconv.Itoa(i)
				if _, err := FullAdder(d, "a=a["+n+"], b=b["+n+"], cin="+cin+", s=out["+n+"], cout="+cout); err != nil {
					return err
				}
				cin = cout
			}
			return nil
		}}
	return s.part
}
