// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwlib provides a library of reusable parts for devsim.
//
// Copyright 2018 Denis Bernard <db047h@gmail.com>
//
// This package is licensed under the MIT license. See license text in the LICENSE file.
//
package hwlib

import (
	"strconv"

	"github.com/db47h/devsim"
)

// common pin names
const (
	pA   = "a"
	pB   = "b"
	pIn  = "in"
	pSel = "sel"
	pOut = "out"
	pClk = "clk"
)

// make a bus declaration
func bus(name string, bits int) string {
	return name + "[" + strconv.Itoa(bits) + "]"
}

// spec is an ordinary part blueprint.
//
type spec struct {
	name  string
	in    []string
	out   []string
	build devsim.BuildFunc
}

func (s *spec) part(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return devsim.New(parent, devsim.Config{Name: s.name, Inputs: s.in, Outputs: s.out}, s.build, conns)
}

func not(in []bool) bool { return !in[0] }

var notGate = spec{name: "NOT", in: []string{pIn}, out: []string{pOut},
	build: func(d *devsim.Device) error {
		return d.Gate(not, pOut, pIn)
	},
}

// Not returns a NOT gate.
//
//	Inputs: in
//	Outputs: out
//	Function: out = !in
//
func Not(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return notGate.part(parent, conns)
}

// other gates
type gate func(a, b bool) bool

func (g gate) fn(in []bool) bool { return g(in[0], in[1]) }

func newGate(name string, fn gate) *spec {
	return &spec{
		name: name,
		in:   []string{pA, pB},
		out:  []string{pOut},
		build: func(d *devsim.Device) error {
			return d.Gate(fn.fn, pOut, pA, pB)
		},
	}
}

var (
	and  = newGate("AND", func(a, b bool) bool { return a && b })
	nand = newGate("NAND", func(a, b bool) bool { return !(a && b) })
	or   = newGate("OR", func(a, b bool) bool { return a || b })
	nor  = newGate("NOR", func(a, b bool) bool { return !(a || b) })
	xor  = newGate("XOR", func(a, b bool) bool { return a && !b || !a && b })
	xnor = newGate("XNOR", func(a, b bool) bool { return a && b || !a && !b })
)

// And returns a AND gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = a && b
//
func And(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return and.part(parent, conns)
}

// Nand returns a NAND gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = !(a && b)
//
func Nand(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return nand.part(parent, conns)
}

// Or returns a OR gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = a || b
//
func Or(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return or.part(parent, conns)
}

// Nor returns a NOR gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = !(a || b)
//
func Nor(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return nor.part(parent, conns)
}

// Xor returns a XOR gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = (a && !b) || (!a && b)
//
func Xor(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return xor.part(parent, conns)
}

// Xnor returns a XNOR gate.
//
//	Inputs: a, b
//	Outputs: out
//	Function: out = a && b || !a && !b
//
func Xnor(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return xnor.part(parent, conns)
}

// NotN returns a N-bits NOT gate.
//
//	Inputs: in[bits]
//	Outputs: out[bits]
//	Function: for i := range out { out[i] = !in[i] }
//
func NotN(bits int) devsim.PartFn {
	s := &spec{
		name: "NOT" + strconv.Itoa(bits),
		in:   []string{bus(pIn, bits)},
		out:  []string{bus(pOut, bits)},
		build: func(d *devsim.Device) error {
			for i := 0; i < bits; i++ {
				if err := d.Gate(not, devsim.BusPinName(pOut, i), devsim.BusPinName(pIn, i)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return s.part
}

// GateN returns a N-bits logic gate.
//
//	Inputs: a[bits], b[bits]
//	Outputs: out[bits]
//	Function: for i := range out { out[i] = f(a[i], b[i]) }
//
func GateN(name string, bits int, f func(a, b bool) bool) devsim.PartFn {
	fn := gate(f).fn
	s := &spec{
		name: name + strconv.Itoa(bits),
		in:   []string{bus(pA, bits), bus(pB, bits)},
		out:  []string{bus(pOut, bits)},
		build: func(d *devsim.Device) error {
			for i := 0; i < bits; i++ {
				err := d.Gate(fn, devsim.BusPinName(pOut, i), devsim.BusPinName(pA, i), devsim.BusPinName(pB, i))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	return s.part
}

var (
	not16  = NotN(16)
	and16  = GateN("AND", 16, func(a, b bool) bool { return a && b })
	nand16 = GateN("NAND", 16, func(a, b bool) bool { return !(a && b) })
	or16   = GateN("OR", 16, func(a, b bool) bool { return a || b })
	nor16  = GateN("NOR", 16, func(a, b bool) bool { return !(a || b) })
)

// Not16 returns a 16 bits NOT gate.
//
//	Inputs: in[16]
//	Outputs: out[16]
//	Function: for i := range out { out[i] = !in[i] }
//
func Not16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return not16(parent, conns)
}

// And16 returns a 16 bits AND gate.
//
//	Inputs: a[16], b[16]
//	Outputs: out[16]
//	Function: for i := range out { out[i] = a[i] && b[i] }
//
func And16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return and16(parent, conns)
}

// Nand16 returns a 16 bits NAND gate.
//
//	Inputs: a[16], b[16]
//	Outputs: out[16]
//	Function: for i := range out { out[i] = !(a[i] && b[i]) }
//
func Nand16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return nand16(parent, conns)
}

// Or16 returns a 16 bits OR gate.
//
//	Inputs: a[16], b[16]
//	Outputs: out[16]
//	Function: for i := range out { out[i] = (a[i] || b[i]) }
//
func Or16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return or16(parent, conns)
}

// Nor16 returns a 16 bits NOR gate.
//
//	Inputs: a[16], b[16]
//	Outputs: out[16]
//	Function: for i := range out { out[i] = !(a[i] || b[i]) }
//
func Nor16(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return nor16(parent, conns)
}

func wayGate(name string, ways int, fn devsim.GateFunc) devsim.PartFn {
	s := &spec{
		name: name + strconv.Itoa(ways) + "Way",
		in:   []string{bus(pIn, ways)},
		out:  []string{pOut},
		build: func(d *devsim.Device) error {
			in := make([]string, ways)
			for i := range in {
				in[i] = devsim.BusPinName(pIn, i)
			}
			return d.Gate(fn, pOut, in...)
		},
	}
	return s.part
}

// OrNWay returns a N-Way OR gate.
//
//	Inputs: in[n]
//	Outputs: out
//	Function: out = in[0] || in[1] || in[2] || ... || in[n-1]
//
func OrNWay(ways int) devsim.PartFn {
	return wayGate("OR", ways, func(in []bool) bool {
		for _, v := range in {
			if v {
				return true
			}
		}
		return false
	})
}

// AndNWay returns a N-Way AND gate.
//
//	Inputs: in[n]
//	Outputs: out
//	Function: out = in[0] && in[1] && in[2] || ... && in[n-1]
//
func AndNWay(ways int) devsim.PartFn {
	return wayGate("AND", ways, func(in []bool) bool {
		for _, v := range in {
			if !v {
				return false
			}
		}
		return true
	})
}
