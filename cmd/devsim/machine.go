// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package main

import (
	"os"
	"strconv"

	"github.com/db47h/devsim"
	"github.com/db47h/devsim/hwlib"
	"github.com/db47h/devsim/internal/config"
	"github.com/db47h/devsim/uart"
	"github.com/pkg/errors"
)

// controller moves bytes received by the UART to memory and sends them back
// in upper case.
//
//	Inputs: clk, ready, rx[8]
//	Outputs: uart_read, uart_write, tx[8], ram_write, addr[aw], data[8]
//
// On the rising edge of clk, in the idle state, if ready is set, the
// controller asserts uart_read and ram_write with the received byte on data
// and the current address on addr. On the next rising edge it asserts
// uart_write with the converted byte on tx and increments the address. The
// UART and RAM act on the falling edge.
//
type controller struct {
	aw int

	clk, ready            int
	uRead, uWrite, mWrite int
	rx, tx, addr, data    devsim.Bus
	echo                  bool
	ptr, mask             uint64
	b                     byte
}

func (c *controller) part(parent *devsim.Device, conns string) (*devsim.Device, error) {
	return devsim.New(parent, devsim.Config{
		Name:    "CTRL",
		Kind:    devsim.Magic,
		Inputs:  []string{"clk, ready, rx[8]"},
		Outputs: []string{"uart_read, uart_write, tx[8], ram_write, addr[" + strconv.Itoa(c.aw) + "], data[8]"},
	}, c, conns)
}

func (c *controller) Build(d *devsim.Device) error {
	c.clk, c.ready = d.Pin("clk"), d.Pin("ready")
	c.uRead, c.uWrite, c.mWrite = d.Pin("uart_read"), d.Pin("uart_write"), d.Pin("ram_write")
	c.rx, c.tx, c.addr, c.data = d.Bus("rx"), d.Bus("tx"), d.Bus("addr"), d.Bus("data")
	c.mask = c.addr.Max()
	d.MarkDriven()
	return nil
}

func (c *controller) Solve(d *devsim.Device) {
	if !d.Rising(c.clk) {
		return
	}
	if c.echo {
		d.Set(c.uRead, false)
		d.Set(c.mWrite, false)
		d.SetBus(c.tx, uint64(upper(c.b)))
		d.Set(c.uWrite, true)
		c.ptr = (c.ptr + 1) & c.mask
		c.echo = false
		return
	}
	d.Set(c.uWrite, false)
	if d.Get(c.ready) {
		c.b = byte(d.GetBus(c.rx))
		d.SetBus(c.addr, c.ptr)
		d.SetBus(c.data, uint64(c.b))
		d.Set(c.uRead, true)
		d.Set(c.mWrite, true)
		c.echo = true
	}
}

func upper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// machine is the simulated circuit run by the driver.
//
type machine struct {
	*devsim.Circuit
	mem  *hwlib.Memory
	uart *uart.Bridge
	clk  int
}

func newMachine(cfg *config.Config, uopts []uart.Option, opts ...devsim.Option) (*machine, error) {
	mem, err := hwlib.NewMemory(cfg.Memory.AddressWidth, cfg.Memory.DataWidth)
	if err != nil {
		return nil, err
	}
	if cfg.Memory.Image != "" {
		img, err := os.ReadFile(cfg.Memory.Image)
		if err != nil {
			return nil, errors.Wrap(err, "read memory image")
		}
		words := make([]uint64, len(img))
		for i, b := range img {
			words[i] = uint64(b)
		}
		if err = mem.Load(0, words...); err != nil {
			return nil, errors.Wrap(err, "load memory image")
		}
	}

	m := &machine{mem: mem}
	ctrl := &controller{aw: cfg.Memory.AddressWidth}
	outputs := "uart_read, uart_write, ram_write"
	if cfg.UART.Enabled {
		outputs += ", data_ready"
	}

	c, err := devsim.NewCircuit(devsim.Config{
		Name:    "top",
		Inputs:  []string{"clk"},
		Outputs: []string{outputs},
		Monitor: true,
	}, devsim.BuildFunc(func(d *devsim.Device) error {
		ctrlConns := "clk=clk, ready=data_ready, rx=rx, uart_read=uart_read, uart_write=uart_write, tx=tx, ram_write=ram_write, addr=addr, data=data"
		if !cfg.UART.Enabled {
			ctrlConns = "clk=clk, ready=false, rx=false, uart_read=uart_read, uart_write=uart_write, ram_write=ram_write, addr=addr, data=data"
		}
		if _, err := ctrl.part(d, ctrlConns); err != nil {
			return err
		}
		ramConns := "clk=clk, read=false, write=ram_write, addr=addr, din[0..7]=data"
		if dw := cfg.Memory.DataWidth; dw > 8 {
			ramConns += ", din[8.." + strconv.Itoa(dw-1) + "]=false"
		}
		if _, err := mem.Part(d, ramConns); err != nil {
			return err
		}
		if !cfg.UART.Enabled {
			return nil
		}
		var err error
		m.uart, err = uart.New(d, "UART", "clk=clk, read=uart_read, write=uart_write, din=tx, dout=rx, data_ready=data_ready", uopts...)
		return err
	}), opts...)
	if err != nil {
		return nil, err
	}
	m.Circuit = c
	m.clk = c.Root().Pin("clk")
	return m, nil
}
