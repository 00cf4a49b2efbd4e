// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

/*
Package devsim is an event driven digital logic simulator.

A circuit is a tree of devices. Each device exposes a table of named input and
output pins, optionally grouped into buses. Ordinary devices are built from
child devices and gate primitives wired together by name. Magic devices have
no internals: they compute their outputs in Go, in a Solve method called on
every propagation pass.

Devices are created with New from within the Build method of their parent.
Creating a device configures its pins, wires them into the parent, builds the
device, checks its connectivity and stabilises it:

	c, err := devsim.NewCircuit(devsim.Root("top", "a, b", "out", devsim.Parts{
		{New: hwlib.Nand, Conns: "a=a, b=b, out=nab"},
		{New: hwlib.Not, Conns: "in=nab, out=out"},
	}))

After a stimulus is applied to the circuit's primary inputs, Stabilise runs
propagation passes until no pin changes state. Each pass reads the pin states
committed by the previous pass, so pin changes are visible for exactly one
pass: this is what edge triggered magic devices use to detect clock edges.
*/
package devsim
