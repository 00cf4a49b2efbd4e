package uart_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/db47h/devsim"
	"github.com/db47h/devsim/uart"
	"github.com/pkg/errors"
)

// fakePort is an in-memory channel. Bytes sent on in are read by the bridge,
// bytes written by the bridge are collected in out.
//
type fakePort struct {
	in      chan []byte
	pending []byte
	hangup  chan struct{}
	closed  chan struct{}
	once    sync.Once

	mu  sync.Mutex
	out bytes.Buffer
}

func newFakePort() *fakePort {
	return &fakePort{
		in:     make(chan []byte, 16),
		hangup: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case p.pending = <-p.in:
		case <-p.hangup:
			return 0, io.EOF
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// opener hands out the given ports in order, then fails.
//
type opener struct {
	mu    sync.Mutex
	ports []*fakePort
	opens int
}

func (o *opener) open() (io.ReadWriteCloser, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opens >= len(o.ports) {
		return nil, "", errors.New("no more ports")
	}
	o.opens++
	return o.ports[o.opens-1], "/dev/fake" + string(rune('0'+o.opens-1)), nil
}

func (o *opener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type harness struct {
	*devsim.Circuit
	b *uart.Bridge

	clk, read, write, ready int
	din, dout               devsim.Bus
}

func newHarness(t *testing.T, opts ...uart.Option) *harness {
	t.Helper()
	h := new(harness)
	c, err := devsim.NewCircuit(devsim.Config{
		Name:    "top",
		Inputs:  []string{"clk, read, write, din[8]"},
		Outputs: []string{"dout[8], data_ready"},
	}, devsim.BuildFunc(func(d *devsim.Device) error {
		var err error
		h.b, err = uart.New(d, "UART", "clk=clk, read=read, write=write, din=din, dout=dout, data_ready=data_ready", opts...)
		return err
	}))
	if err != nil {
		t.Fatal(err)
	}
	h.Circuit = c
	root := c.Root()
	h.clk, h.read, h.write, h.ready = root.Pin("clk"), root.Pin("read"), root.Pin("write"), root.Pin("data_ready")
	h.din, h.dout = root.Bus("din"), root.Bus("dout")
	return h
}

// poll stabilises the circuit and returns data_ready.
//
func (h *harness) poll(t *testing.T) bool {
	t.Helper()
	if _, err := h.Stabilise(); err != nil {
		t.Fatal(err)
	}
	return h.Get(h.ready)
}

func (h *harness) cycle(t *testing.T, read, write bool) {
	t.Helper()
	h.Set(h.read, read)
	h.Set(h.write, write)
	if err := h.Cycle(h.clk); err != nil {
		t.Fatal(err)
	}
}

func TestBridge_receive(t *testing.T) {
	port := newFakePort()
	o := &opener{ports: []*fakePort{port}}
	var out syncBuffer
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(&out))
	defer h.Dispose()

	if out.String() != "/dev/fake0\n" {
		t.Errorf("reported path %q", out.String())
	}
	if !h.b.Available() {
		t.Error("bridge not available")
	}
	if h.poll(t) {
		t.Fatal("data_ready set with an empty queue")
	}

	port.in <- []byte("hi")
	eventually(t, "data_ready", func() bool { return h.poll(t) })
	eventually(t, "second byte", func() bool { return h.b.Pending() == 2 })
	if got := h.GetBus(h.dout); got != 'h' {
		t.Fatalf("dout = %q, want 'h'", rune(got))
	}

	// reading without a clock edge has no effect
	h.Set(h.read, true)
	if !h.poll(t) || h.b.Pending() != 2 {
		t.Fatal("byte consumed without a clock edge")
	}

	h.cycle(t, true, false)
	if !h.Get(h.ready) || h.GetBus(h.dout) != 'i' {
		t.Fatalf("after first read: data_ready = %v, dout = %q", h.Get(h.ready), rune(h.GetBus(h.dout)))
	}
	h.cycle(t, true, false)
	if h.Get(h.ready) {
		t.Fatal("data_ready still set after the queue was drained")
	}
	// dout keeps its last value
	if h.GetBus(h.dout) != 'i' {
		t.Fatalf("dout = %q, want 'i'", rune(h.GetBus(h.dout)))
	}
	// reading an empty queue is a no-op
	h.cycle(t, true, false)
	if h.Get(h.ready) || h.b.Pending() != 0 {
		t.Fatal("read from an empty queue")
	}

	port.in <- []byte("!")
	eventually(t, "data_ready after refill", func() bool { return h.poll(t) })
	if h.GetBus(h.dout) != '!' {
		t.Fatalf("dout = %q, want '!'", rune(h.GetBus(h.dout)))
	}
}

func TestBridge_transmit(t *testing.T) {
	port := newFakePort()
	o := &opener{ports: []*fakePort{port}}
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(io.Discard))
	defer h.Dispose()

	for _, c := range []byte("OK") {
		h.SetBus(h.din, uint64(c))
		h.cycle(t, false, true)
	}
	// read and write together do nothing
	h.SetBus(h.din, '?')
	h.cycle(t, true, true)
	eventually(t, "transmitted bytes", func() bool { return port.written() == "OK" })

	if err := h.Dispose(); err != nil {
		t.Fatal(err)
	}
	if s := port.written(); s != "OK" {
		t.Fatalf("port received %q, want %q", s, "OK")
	}
}

func TestBridge_echo(t *testing.T) {
	td := []struct {
		name string
		opts []uart.Option
		in   string
		echo string
	}{
		{"crlf", nil, "ab\rc", "ab\r\nc"},
		{"raw", []uart.Option{uart.WithCRLF(false)}, "ab\rc", "ab\rc"},
		{"off", []uart.Option{uart.WithEcho(false)}, "ab\rc", ""},
	}
	for _, d := range td {
		t.Run(d.name, func(t *testing.T) {
			port := newFakePort()
			o := &opener{ports: []*fakePort{port}}
			h := newHarness(t, append(d.opts, uart.WithOpener(o.open), uart.WithOutput(io.Discard))...)
			port.in <- []byte(d.in)
			eventually(t, "queued bytes", func() bool { return h.b.Pending() == len(d.in) })
			if d.echo != "" {
				eventually(t, "echo", func() bool { return port.written() == d.echo })
			}
			if err := h.Dispose(); err != nil {
				t.Fatal(err)
			}
			if s := port.written(); s != d.echo {
				t.Errorf("echo = %q, want %q", s, d.echo)
			}
		})
	}
}

func TestBridge_queueFull(t *testing.T) {
	port := newFakePort()
	o := &opener{ports: []*fakePort{port}}
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(io.Discard), uart.WithQueueSize(2), uart.WithEcho(false))
	defer h.Dispose()

	port.in <- []byte("abc")
	eventually(t, "dropped byte", func() bool { return h.b.Dropped() == 1 })
	if n := h.b.Pending(); n != 2 {
		t.Fatalf("%d bytes pending, want 2", n)
	}
	h.poll(t)
	h.cycle(t, true, false)
	if h.GetBus(h.dout) != 'b' {
		t.Fatalf("dout = %q, want 'b'", rune(h.GetBus(h.dout)))
	}
}

func TestBridge_reopen(t *testing.T) {
	p1, p2 := newFakePort(), newFakePort()
	o := &opener{ports: []*fakePort{p1, p2}}
	var out syncBuffer
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(&out), uart.WithEcho(false))
	defer h.Dispose()

	p1.in <- []byte("x")
	eventually(t, "first byte", func() bool { return h.poll(t) })

	close(p1.hangup)
	eventually(t, "reopen", func() bool { return o.count() == 2 && h.b.Available() })
	if s := out.String(); s != "/dev/fake0\n/dev/fake1\n" {
		t.Errorf("reported paths %q", s)
	}
	// queued data survives the reconnection
	if h.GetBus(h.dout) != 'x' || h.b.Pending() != 1 {
		t.Fatal("queued byte lost")
	}

	p2.in <- []byte("y")
	eventually(t, "byte from the new channel", func() bool { return h.b.Pending() == 2 })
	h.cycle(t, true, false)
	if h.GetBus(h.dout) != 'y' {
		t.Fatalf("dout = %q, want 'y'", rune(h.GetBus(h.dout)))
	}
}

func TestBridge_reopenRetry(t *testing.T) {
	p1 := newFakePort()
	o := &opener{ports: []*fakePort{p1}}
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(io.Discard))

	close(p1.hangup)
	eventually(t, "unavailable", func() bool { return !h.b.Available() })
	// the bridge keeps retrying; Dispose must interrupt it
	done := make(chan error)
	go func() { done <- h.Dispose() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose blocked while reopening")
	}
}

func TestBridge_closedDuringReopen(t *testing.T) {
	p1, p2 := newFakePort(), newFakePort()
	o := &opener{ports: []*fakePort{p1, p2}}
	entered, release := make(chan struct{}, 1), make(chan struct{})
	open := func() (io.ReadWriteCloser, string, error) {
		if o.count() == 1 {
			entered <- struct{}{}
			<-release
		}
		return o.open()
	}
	var out syncBuffer
	h := newHarness(t, uart.WithOpener(open), uart.WithOutput(&out))

	close(p1.hangup)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not try to reopen")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := h.b.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-p2.closed:
	default:
		t.Fatal("port opened during Close was not closed")
	}
	if h.b.Available() {
		t.Fatal("bridge available after Close")
	}
	if s := out.String(); s != "/dev/fake0\n" {
		t.Fatalf("reported paths %q", s)
	}
	if err := h.Dispose(); err != nil {
		t.Fatal(err)
	}
}

func TestBridge_transmitAfterClose(t *testing.T) {
	port := newFakePort()
	o := &opener{ports: []*fakePort{port}}
	h := newHarness(t, uart.WithOpener(o.open), uart.WithOutput(io.Discard))
	defer h.Dispose()

	if err := h.b.Close(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2*uart.DefaultTxSize; i++ {
		h.SetBus(h.din, 'x')
		h.cycle(t, false, true)
	}
	if s := port.written(); s != "" {
		t.Fatalf("port received %q after Close", s)
	}
}

func TestBridge_openError(t *testing.T) {
	o := &opener{}
	_, err := devsim.NewCircuit(devsim.Config{Name: "top"}, devsim.BuildFunc(func(d *devsim.Device) error {
		_, err := uart.New(d, "UART", "clk=false, read=false, write=false, din=false", uart.WithOpener(o.open))
		return err
	}))
	if err == nil || !strings.Contains(err.Error(), "top.UART: no more ports") {
		t.Fatalf("got error %v", err)
	}
}

func TestBridge_part(t *testing.T) {
	port := newFakePort()
	o := &opener{ports: []*fakePort{port}}
	c, err := devsim.NewCircuit(devsim.Root("top", "clk, read", "ready", devsim.Parts{
		{New: uart.Part(uart.WithOpener(o.open), uart.WithOutput(io.Discard)), Conns: "clk=clk, read=read, write=false, din=false, data_ready=ready"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	if d := c.Root().Children()[0]; d.Name() != "UART" || d.Kind() != devsim.Magic {
		t.Fatalf("unexpected device %s (%v)", d.Name(), d.Kind())
	}
	port.in <- []byte{0}
	eventually(t, "data_ready", func() bool {
		if _, err := c.Stabilise(); err != nil {
			t.Fatal(err)
		}
		return c.Get(c.Root().Pin("ready"))
	})
}

func TestPTY(t *testing.T) {
	port, path, err := uart.PTY()
	if err != nil {
		t.Skip("pseudo-terminals not available:", err)
	}
	defer port.Close()

	slave, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer slave.Close()

	if _, err = slave.Write([]byte("ping\r")); err != nil {
		t.Fatal(err)
	}
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := io.ReadAtLeast(port, buf, 5)
		got <- string(buf[:n])
	}()
	select {
	case s := <-got:
		// raw mode: no CR translation
		if s != "ping\r" {
			t.Fatalf("read %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading from pty")
	}
}
