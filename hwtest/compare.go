// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwtest provides utility functions for testing circuits.
//
package hwtest

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/db47h/devsim"
)

func connString(names []string) string {
	var b strings.Builder
	for _, n := range names {
		if b.Len() > 0 {
			b.WriteRune(',')
		}
		b.WriteString(n)
		b.WriteRune('=')
		b.WriteString(n)
	}
	return b.String()
}

// Wrap returns a new circuit whose root device exposes the inputs and
// outputs of part. in and out are the pin declarations of part, like "a, b,
// sel" or "addr[8]".
//
func Wrap(part devsim.PartFn, in, out string, opts ...devsim.Option) (*devsim.Circuit, error) {
	ins, err := devsim.ExpandIO(in)
	if err != nil {
		return nil, err
	}
	outs, err := devsim.ExpandIO(out)
	if err != nil {
		return nil, err
	}
	conns := connString(append(ins, outs...))
	cfg, impl := devsim.Root("wrapper", in, out, devsim.Parts{{New: part, Conns: conns}})
	return devsim.NewCircuit(cfg, impl, opts...)
}

// ComparePart takes two parts and compares their outputs given the same inputs.
// Both parts must have the input and output pins declared by in and out.
//
func ComparePart(t *testing.T, in, out string, part1, part2 devsim.PartFn) {
	t.Helper()

	c1, err := Wrap(part1, in, out)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Dispose()
	c2, err := Wrap(part2, in, out)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Dispose()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	root := c1.Root()
	var inputs, outputs []int
	for i := 0; i < root.NumPins(); i++ {
		if root.PinAt(i).Dir == devsim.In {
			inputs = append(inputs, i)
		} else {
			outputs = append(outputs, i)
		}
	}

	errString := func(o int) string {
		var b strings.Builder
		for _, i := range inputs {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", root.PinAt(i).Name, c1.Get(i))
		}
		return fmt.Sprintf("\nExpected %s => %s=%v\nGot %v", b.String(), root.PinAt(o).Name, c1.Get(o), c2.Get(o))
	}

	check := func(set func() bool) {
		for _, i := range inputs {
			v := set()
			c1.Set(i, v)
			c2.Set(i, v)
		}
		if _, err := c1.Stabilise(); err != nil {
			t.Fatal(err)
		}
		if _, err := c2.Stabilise(); err != nil {
			t.Fatal(err)
		}
		for _, o := range outputs {
			if c1.Get(o) != c2.Get(o) {
				t.Fatal(errString(o))
			}
		}
	}

	// random testing
	iter := len(inputs)
	if iter > 12 {
		iter = 12
	}
	iter = 1 << uint(iter)

	start := time.Now()
	check(func() bool { return false })
	check(func() bool { return true })
	for i := 0; i < iter; i++ {
		check(func() bool { return r.Int63()&(1<<62) != 0 })
	}
	t.Logf("%d devices. %d passes in %v", c1.Size()+c2.Size(), c1.Passes()+c2.Passes(), time.Since(start))
}

// TruthTable checks the outputs of part against a truth table. result[o][i]
// is the expected value of output o for the input combination i, where the
// first input is the most significant bit of i.
//
func TruthTable(t *testing.T, in, out string, part devsim.PartFn, result [][]bool) {
	t.Helper()

	c, err := Wrap(part, in, out)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	root := c.Root()
	var inputs, outputs []int
	for i := 0; i < root.NumPins(); i++ {
		if root.PinAt(i).Dir == devsim.In {
			inputs = append(inputs, i)
		} else {
			outputs = append(outputs, i)
		}
	}
	if len(result) != len(outputs) {
		t.Fatalf("%d outputs, got results for %d", len(outputs), len(result))
	}

	tot := 1 << uint(len(inputs))
	for i := 0; i < tot; i++ {
		for bit := range inputs {
			c.Set(inputs[len(inputs)-bit-1], i&(1<<uint(bit)) != 0)
		}
		if _, err = c.Stabilise(); err != nil {
			t.Fatal(err)
		}
		for o, pin := range outputs {
			if exp, got := result[o][i], c.Get(pin); exp != got {
				t.Errorf("%s: input %0*b: %s = %v, got %v", root.Name(), len(inputs), i, root.PinAt(pin).Name, exp, got)
			}
		}
	}
}
