// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

// A Part wraps a part constructor together with its connections within a
// host chip.
//
type Part struct {
	New   PartFn
	Conns string
}

// Parts is a list of parts.
//
type Parts []Part

// Chip composes existing parts into a new ordinary part. The pins declared
// in inputs and outputs will be the inputs and outputs of the chip.
//
// An Xor gate could be created like this:
//
//	xor := devsim.Chip("XOR", "a, b", "out", devsim.Parts{
//		{hwlib.Nand, "a=a, b=b, out=nandAB"},
//		{hwlib.Nand, "a=a, b=nandAB, out=w0"},
//		{hwlib.Nand, "a=b, b=nandAB, out=w1"},
//		{hwlib.Nand, "a=w0, b=w1, out=out"},
//	})
//
// The returned PartFn can be used to compose the new part with others into
// other chips:
//
//	xnor := devsim.Chip("XNOR", "a, b", "out", devsim.Parts{
//		{xor, "a=a, b=b, out=xorAB"},
//		{hwlib.Not, "in=xorAB, out=out"},
//	})
//
// Wiring errors are reported when the chip is instantiated.
//
func Chip(name string, inputs, outputs string, parts Parts) PartFn {
	cfg, impl := Root(name, inputs, outputs, parts)
	return func(parent *Device, conns string) (*Device, error) {
		return New(parent, cfg, impl, conns)
	}
}

// Root returns a Config and Impl for a circuit root built from parts. The
// inputs and outputs are the primary inputs and outputs of the circuit.
//
//	c, err := devsim.NewCircuit(devsim.Root("top", "a, b", "out", devsim.Parts{
//		{hwlib.Nand, "a=a, b=b, out=out"},
//	}))
//
func Root(name string, inputs, outputs string, parts Parts) (Config, Impl) {
	cfg := Config{Name: name}
	if inputs != "" {
		cfg.Inputs = []string{inputs}
	}
	if outputs != "" {
		cfg.Outputs = []string{outputs}
	}
	return cfg, BuildFunc(func(d *Device) error {
		for _, p := range parts {
			if _, err := p.New(d, p.Conns); err != nil {
				return err
			}
		}
		return nil
	})
}
