// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"strconv"

	"github.com/db47h/devsim"
	"github.com/pkg/errors"
)

// Memory size limits.
//
const (
	MaxAddressWidth = 24
	MaxDataWidth    = 64
)

// Memory is the implementation of a RAM device. It is exposed so that
// programs can load or inspect its contents.
//
//	Inputs: clk, read, write, addr[addrWidth], din[dataWidth]
//	Outputs: dout[dataWidth]
//
// On the falling edge of clk, if read is set and write is not, the word at
// address addr is output on dout. If write is set and read is not, the value
// of din is stored at address addr. Otherwise nothing happens.
//
type Memory struct {
	aw, dw int
	mem    []uint64
	mask   uint64

	clk, read, write int
	addr, din, dout  devsim.Bus
}

// NewMemory returns a new Memory with 1<<addrWidth words of dataWidth bits.
//
func NewMemory(addrWidth, dataWidth int) (*Memory, error) {
	if addrWidth < 1 || addrWidth > MaxAddressWidth {
		return nil, errors.Errorf("invalid address width %d", addrWidth)
	}
	if dataWidth < 1 || dataWidth > MaxDataWidth {
		return nil, errors.Errorf("invalid data width %d", dataWidth)
	}
	return &Memory{
		aw:   addrWidth,
		dw:   dataWidth,
		mem:  make([]uint64, 1<<uint(addrWidth)),
		mask: devsim.Bus(make([]int, dataWidth)).Max(),
	}, nil
}

// Part creates a RAM device backed by m within parent. It can only be called
// once per Memory.
//
func (m *Memory) Part(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return devsim.New(parent, devsim.Config{
		Name:    "RAM" + strconv.Itoa(m.aw) + "x" + strconv.Itoa(m.dw),
		Kind:    devsim.Magic,
		Inputs:  []string{pClk, "read", "write", bus("addr", m.aw), bus("din", m.dw)},
		Outputs: []string{bus("dout", m.dw)},
	}, m, conns)
}

// Build implements devsim.Impl.
//
func (m *Memory) Build(d *devsim.Device) error {
	if m.addr != nil {
		return errors.Errorf("%s: memory already in use by another device", d.Path())
	}
	m.clk, m.read, m.write = d.Pin(pClk), d.Pin("read"), d.Pin("write")
	m.addr, m.din, m.dout = d.Bus("addr"), d.Bus("din"), d.Bus("dout")
	d.MarkDriven()
	return nil
}

// Solve implements devsim.Solver.
//
func (m *Memory) Solve(d *devsim.Device) {
	if !d.Falling(m.clk) {
		return
	}
	r, w := d.Get(m.read), d.Get(m.write)
	switch {
	case r && !w:
		d.SetBus(m.dout, m.mem[d.GetBus(m.addr)])
	case w && !r:
		m.mem[d.GetBus(m.addr)] = d.GetBus(m.din)
	}
}

// Size returns the memory size in words.
//
func (m *Memory) Size() int { return len(m.mem) }

// Load copies words into memory starting at address addr. Words are truncated
// to the memory data width.
//
func (m *Memory) Load(addr uint64, words ...uint64) error {
	if addr > uint64(len(m.mem)) || uint64(len(words)) > uint64(len(m.mem))-addr {
		return errors.Errorf("%d words at address %#x out of range", len(words), addr)
	}
	for i, w := range words {
		m.mem[addr+uint64(i)] = w & m.mask
	}
	return nil
}

// Peek returns the word at address addr.
//
func (m *Memory) Peek(addr uint64) uint64 { return m.mem[addr] }

// RAM returns a RAM with 1<<addrWidth words of dataWidth bits. See Memory.
//
func RAM(addrWidth, dataWidth int) devsim.PartFn {
	return func(parent *devsim.Device, conns string) (*devsim.Device, error) {
		m, err := NewMemory(addrWidth, dataWidth)
		if err != nil {
			return nil, err
		}
		return m.Part(parent, conns)
	}
}
