// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"strconv"

	"github.com/db47h/devsim"
)

func mux2(in []bool) bool {
	if in[2] {
		return in[1]
	}
	return in[0]
}

// Mux returns a multiplexer.
//
//	Inputs: a, b, sel
//	Outputs: out
//	Function: if sel == 0 { out = a } else { out = b }
//
func Mux(parent *devsim.Device, conns string) (*devsim.Device, error) { return mux.part(parent, conns) }

var mux = spec{
	name: "MUX",
	in:   []string{pA, pB, pSel},
	out:  []string{pOut},
	build: func(d *devsim.Device) error {
		return d.Gate(mux2, pOut, pA, pB, pSel)
	},
}

// DMux returns a demultiplexer.
//
//	Inputs: in, sel
//	Outputs: a, b
//	Function: if sel == 0 { a = in; b = 0 } else { a = 0; b = in }
//
func DMux(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return dmux.part(parent, conns)
}

var dmux = spec{
	name: "DMUX",
	in:   []string{pIn, pSel},
	out:  []string{pA, pB},
	build: func(d *devsim.Device) error {
		if err := d.Gate(func(in []bool) bool { return in[0] && !in[1] }, pA, pIn, pSel); err != nil {
			return err
		}
		return d.Gate(func(in []bool) bool { return in[0] && in[1] }, pB, pIn, pSel)
	},
}

// MuxN returns an n-bits Mux.
//
//	Inputs: a[bits], b[bits], sel
//	Outputs: out[bits]
//	Function: for i := range out { if sel == 0 { out[i] = a[i] } else { out[i] = b[i] } }
//
func MuxN(bits int) devsim.PartFn {
	s := &spec{
		name: "MUX" + strconv.Itoa(bits),
		in:   []string{bus(pA, bits), bus(pB, bits), pSel},
		out:  []string{bus(pOut, bits)},
		build: func(d *devsim.Device) error {
			for i := 0; i < bits; i++ {
				err := d.Gate(mux2, devsim.BusPinName(pOut, i), devsim.BusPinName(pA, i), devsim.BusPinName(pB, i), pSel)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	return s.part
}

var mux16 = MuxN(16)

// Mux16 returns a 16-bits Mux
//
//	Inputs: a[16], b[16], sel
//	Outputs: out[16]
//	Function: for i := range out { if sel == 0 { out[i] = a[i] } else { out[i] = b[i] } }
//
func Mux16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return mux16(parent, conns)
}

// DMuxN returns an n-bits demultiplexer.
//
//	Inputs: in[bits], sel
//	Outputs: a[bits], b[bits]
//	Function: for i := range in { if sel == 0 { a[i] = in[i]; b[i] = 0 } else { a[i] = 0; b[i] = in[i] } }
//
func DMuxN(bits int) devsim.PartFn {
	s := &spec{
		name: "DMUX" + strconv.Itoa(bits),
		in:   []string{bus(pIn, bits), pSel},
		out:  []string{bus(pA, bits), bus(pB, bits)},
		build: func(d *devsim.Device) error {
			for i := 0; i < bits; i++ {
				_, err := DMux(d, "in=in["+strconv.Itoa(i)+"], sel=sel, a=a["+strconv.Itoa(i)+"], b=b["+strconv.Itoa(i)+"]")
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	return s.part
}
