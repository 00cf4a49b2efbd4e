package main

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/db47h/devsim/internal/config"
	"github.com/db47h/devsim/uart"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Memory.AddressWidth = 4
	cfg.Memory.DataWidth = 12
	cfg.Simulation.ClockPeriodMS = 0
	return cfg
}

func TestMachine_echo(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	opener := func() (io.ReadWriteCloser, string, error) { return local, "pipe", nil }

	m, err := newMachine(testConfig(), []uart.Option{
		uart.WithOpener(opener),
		uart.WithOutput(io.Discard),
		uart.WithEcho(false),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Dispose()

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		n, _ := io.ReadFull(remote, buf)
		got <- buf[:n]
	}()
	if _, err = remote.Write([]byte("hi!")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.mem.Peek(2) != '!' {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, memory: %q %q %q", rune(m.mem.Peek(0)), rune(m.mem.Peek(1)), rune(m.mem.Peek(2)))
		}
		if err = m.Cycle(m.clk); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Microsecond)
	}
	// one more cycle to transmit the last byte
	if err = m.Cycle(m.clk); err != nil {
		t.Fatal(err)
	}
	if m.mem.Peek(0) != 'h' || m.mem.Peek(1) != 'i' {
		t.Errorf("memory: %q %q", rune(m.mem.Peek(0)), rune(m.mem.Peek(1)))
	}

	select {
	case b := <-got:
		if string(b) != "HI!" {
			t.Errorf("received %q, expected %q", b, "HI!")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transmitted bytes")
	}
}

func TestMachine_noUART(t *testing.T) {
	cfg := testConfig()
	cfg.UART.Enabled = false
	cfg.Simulation.Cycles = 10
	m, err := newMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Dispose()
	if m.uart != nil {
		t.Fatal("UART created")
	}
	if _, ok := m.Root().Lookup("data_ready"); ok {
		t.Fatal("data_ready pin present")
	}
	n, err := clock(context.Background(), m, cfg, &panel{w: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("ran %d cycles, expected 10", n)
	}
}

func TestMachine_image(t *testing.T) {
	cfg := testConfig()
	cfg.UART.Enabled = false
	cfg.Memory.Image = filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(cfg.Memory.Image, []byte{0xde, 0xad}, 0600); err != nil {
		t.Fatal(err)
	}
	m, err := newMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Dispose()
	if m.mem.Peek(0) != 0xde || m.mem.Peek(1) != 0xad {
		t.Fatalf("memory: %#x %#x", m.mem.Peek(0), m.mem.Peek(1))
	}

	// image larger than memory
	if err = os.WriteFile(cfg.Memory.Image, make([]byte, 17), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err = newMachine(cfg, nil); err == nil {
		t.Fatal("expected error for oversized image")
	}
}

func TestClock_cancel(t *testing.T) {
	cfg := testConfig()
	cfg.UART.Enabled = false
	cfg.Simulation.ClockPeriodMS = 1
	m, err := newMachine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Dispose()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		clock(ctx, m, cfg, &panel{w: io.Discard})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("clock did not stop")
	}
}

func TestUpper(t *testing.T) {
	for in, exp := range map[byte]byte{'a': 'A', 'z': 'Z', 'A': 'A', '!': '!', '\r': '\r'} {
		if got := upper(in); got != exp {
			t.Errorf("upper(%q) = %q, expected %q", in, got, exp)
		}
	}
}
