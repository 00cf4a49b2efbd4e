// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package uart provides a UART bridge device that connects a simulated circuit
// to a byte channel, by default a pseudo-terminal.
//
//	Inputs: clk, read, write, din[8]
//	Outputs: dout[8], data_ready
//
// Bytes received on the channel are queued. While the queue is not empty,
// data_ready is set and dout holds the oldest byte. On the falling edge of
// clk, if read is set and write is not, that byte is removed from the queue.
// If write is set and read is not, the value of din is sent to the channel.
//
// The channel is owned by background goroutines. The simulation never blocks
// on it: Solve only looks at the receive queue and hands bytes to send over to
// a bounded transmit buffer.
//
package uart

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"github.com/db47h/devsim"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Default settings.
//
const (
	DefaultQueueSize = 256
	DefaultTxSize    = 64

	minRetry = 50 * time.Millisecond
	maxRetry = 5 * time.Second
)

// An Opener opens a new byte channel. It returns the channel and a path that
// an external program can use to connect to it.
//
type Opener func() (port io.ReadWriteCloser, path string, err error)

// PTY is the default Opener. It opens a new pseudo-terminal, puts its slave
// side in raw mode and returns the master side. The path is the name of the
// slave device.
//
// The slave side is kept open until the port is closed so that reads do not
// fail while no program is attached. As a consequence, a program detaching
// from the slave is not seen as a disconnect: the bridge stays available on
// the same path and the next program to open it picks up where the previous
// one left off. Reopening only happens on a genuine read error on the master.
//
func PTY() (io.ReadWriteCloser, string, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, "", errors.Wrap(err, "open pty")
	}
	if _, err = term.MakeRaw(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, "", errors.Wrap(err, "set raw mode")
	}
	return &ptyPort{master, slave}, slave.Name(), nil
}

type ptyPort struct {
	*os.File
	slave *os.File
}

func (p *ptyPort) Close() error {
	err := p.File.Close()
	if e := p.slave.Close(); err == nil {
		err = e
	}
	return err
}

// An Option configures a Bridge.
//
type Option func(b *Bridge)

// WithOpener sets the function used to open the byte channel. The default is
// PTY.
//
func WithOpener(o Opener) Option {
	return func(b *Bridge) { b.open = o }
}

// WithOutput sets where the channel path is reported on each (re)open. The
// default is os.Stdout.
//
func WithOutput(w io.Writer) Option {
	return func(b *Bridge) { b.out = w }
}

// WithQueueSize sets the capacity of the receive queue. Bytes received while
// the queue is full are dropped.
//
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.rx = make([]byte, n)
		}
	}
}

// WithLogger sets the logger.
//
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithEcho enables or disables echoing received bytes back to the channel.
// Echo is enabled by default.
//
func WithEcho(echo bool) Option {
	return func(b *Bridge) { b.echo = echo }
}

// WithCRLF enables or disables expanding echoed carriage returns to CR LF.
// It is enabled by default.
//
func WithCRLF(crlf bool) Option {
	return func(b *Bridge) { b.crlf = crlf }
}

// Bridge is the implementation of a UART bridge device.
//
type Bridge struct {
	open Opener
	out  io.Writer
	log  *slog.Logger
	echo bool
	crlf bool

	clk, read, write, ready int
	din, dout               devsim.Bus

	// receive queue, ring buffer
	mu     sync.Mutex
	rx     []byte
	head   int
	n      int
	drops  uint64
	portMu sync.Mutex
	port   io.ReadWriteCloser
	wmu    sync.Mutex

	available atomic.Bool
	running   atomic.Bool
	tx        chan byte
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newBridge(opts []Option) *Bridge {
	b := &Bridge{
		open: PTY,
		out:  os.Stdout,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		echo: true,
		crlf: true,
		rx:   make([]byte, DefaultQueueSize),
		tx:   make(chan byte, DefaultTxSize),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// New creates a new UART bridge device named name within parent.
//
func New(parent *devsim.Device, name string, conns string, opts ...Option) (*Bridge, error) {
	b := newBridge(opts)
	if _, err := devsim.New(parent, deviceConfig(name), b, conns); err != nil {
		return nil, err
	}
	return b, nil
}

// Part returns a PartFn that creates UART bridge devices named "UART".
//
func Part(opts ...Option) devsim.PartFn {
	return func(parent *devsim.Device, conns string) (*devsim.Device, error) {
		return devsim.New(parent, deviceConfig("UART"), newBridge(opts), conns)
	}
}

func deviceConfig(name string) devsim.Config {
	return devsim.Config{
		Name:    name,
		Kind:    devsim.Magic,
		Inputs:  []string{"clk, read, write, din[8]"},
		Outputs: []string{"dout[8], data_ready"},
	}
}

// Build implements devsim.Impl. It opens the channel and starts the
// background goroutines.
//
func (b *Bridge) Build(d *devsim.Device) error {
	if b.running.Load() {
		return errors.Errorf("%s: bridge already in use by another device", d.Path())
	}
	b.clk, b.read, b.write, b.ready = d.Pin("clk"), d.Pin("read"), d.Pin("write"), d.Pin("data_ready")
	b.din, b.dout = d.Bus("din"), d.Bus("dout")
	d.MarkDriven()

	p, path, err := b.open()
	if err != nil {
		return errors.Wrapf(err, "%s", d.Path())
	}
	b.log = b.log.With("device", d.Path())
	b.running.Store(true)
	b.attach(p, path)

	b.wg.Add(2)
	go b.reader()
	go b.writer()
	return nil
}

// Solve implements devsim.Solver.
//
func (b *Bridge) Solve(d *devsim.Device) {
	if d.Falling(b.clk) {
		r, w := d.Get(b.read), d.Get(b.write)
		switch {
		case r && !w:
			b.pop()
		case w && !r:
			b.transmit(byte(d.GetBus(b.din)))
		}
	}
	if c, ok := b.peek(); ok {
		d.SetBus(b.dout, uint64(c))
		d.Set(b.ready, true)
	} else {
		d.Set(b.ready, false)
	}
}

// Available reports whether the channel is currently open.
//
func (b *Bridge) Available() bool { return b.available.Load() }

// Pending returns the number of received bytes not yet read by the circuit.
//
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Dropped returns the number of received bytes dropped because the queue was
// full.
//
func (b *Bridge) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}

// Close implements io.Closer. It stops the background goroutines, closes the
// channel and waits for the goroutines to exit.
//
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.running.Store(false)
		close(b.done)
		b.portMu.Lock()
		if b.port != nil {
			err = b.port.Close()
			b.port = nil
		}
		b.available.Store(false)
		b.portMu.Unlock()
		b.wg.Wait()
	})
	return err
}

// attach installs p as the current port and reports its path. If the bridge
// has been closed, p is closed instead and attach returns false.
//
func (b *Bridge) attach(p io.ReadWriteCloser, path string) bool {
	b.portMu.Lock()
	if !b.running.Load() {
		b.portMu.Unlock()
		p.Close()
		return false
	}
	b.port = p
	b.available.Store(true)
	b.portMu.Unlock()
	fmt.Fprintln(b.out, path)
	b.log.Info("uart channel open", "path", path)
	return true
}

func (b *Bridge) current() io.ReadWriteCloser {
	b.portMu.Lock()
	defer b.portMu.Unlock()
	return b.port
}

// detach closes p if it is still the current port.
//
func (b *Bridge) detach(p io.ReadWriteCloser) {
	b.portMu.Lock()
	defer b.portMu.Unlock()
	if b.port == p {
		b.port = nil
		b.available.Store(false)
		p.Close()
	}
}

// reopen opens a new channel, retrying with an increasing delay until it
// succeeds or the bridge is closed.
//
func (b *Bridge) reopen() bool {
	delay := minRetry
	for {
		select {
		case <-b.done:
			return false
		case <-time.After(delay):
		}
		p, path, err := b.open()
		if err == nil {
			return b.attach(p, path)
		}
		b.log.Warn("uart channel reopen failed", "error", err, "retry", delay)
		if delay *= 2; delay > maxRetry {
			delay = maxRetry
		}
	}
}

func (b *Bridge) reader() {
	defer b.wg.Done()
	buf := make([]byte, 256)
	for b.running.Load() {
		p := b.current()
		if p == nil {
			if !b.reopen() {
				return
			}
			continue
		}
		n, err := p.Read(buf)
		if n > 0 {
			b.receive(buf[:n])
		}
		if err != nil {
			if !b.running.Load() {
				return
			}
			b.log.Warn("uart channel lost", "error", err)
			b.detach(p)
		}
	}
}

func (b *Bridge) writer() {
	defer b.wg.Done()
	for {
		select {
		case c := <-b.tx:
			b.send([]byte{c})
		case <-b.done:
			return
		}
	}
}

// receive queues incoming bytes and echoes them.
//
func (b *Bridge) receive(p []byte) {
	b.mu.Lock()
	dropped := 0
	for _, c := range p {
		if b.n == len(b.rx) {
			dropped++
			continue
		}
		b.rx[(b.head+b.n)%len(b.rx)] = c
		b.n++
	}
	b.drops += uint64(dropped)
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Warn("uart receive queue full, bytes dropped", "count", dropped)
	}
	if b.echo {
		b.send(b.echoed(p))
	}
}

func (b *Bridge) echoed(p []byte) []byte {
	if !b.crlf {
		return p
	}
	out := make([]byte, 0, len(p)+1)
	for _, c := range p {
		out = append(out, c)
		if c == '\r' {
			out = append(out, '\n')
		}
	}
	return out
}

// send writes p to the current port. Write errors are left for the reader to
// detect.
//
func (b *Bridge) send(p []byte) {
	port := b.current()
	if port == nil {
		b.log.Debug("uart channel not available, output dropped", "count", len(p))
		return
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := port.Write(p); err != nil {
		b.log.Debug("uart write failed", "error", err)
	}
}

func (b *Bridge) transmit(c byte) {
	if !b.running.Load() {
		b.log.Debug("uart closed, byte dropped", "byte", c)
		return
	}
	select {
	case b.tx <- c:
	default:
		b.log.Warn("uart transmit buffer full, byte dropped", "byte", c)
	}
}

func (b *Bridge) peek() (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n == 0 {
		return 0, false
	}
	return b.rx[b.head], true
}

func (b *Bridge) pop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n == 0 {
		return
	}
	b.head = (b.head + 1) % len(b.rx)
	b.n--
}
