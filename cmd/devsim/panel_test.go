package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/db47h/devsim"
)

func TestPanel(t *testing.T) {
	c, err := devsim.NewCircuit(devsim.Config{Name: "top", Inputs: []string{"a, b, c"}}, devsim.BuildFunc(func(*devsim.Device) error { return nil }))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	var logBuf, out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, nil))
	p := newPanel(&out, c.Root(), []string{
		"A,a",
		"bee, b ",
		"broken",
		"too,many,fields",
		",c",
		"x,nosuchpin",
	}, log)

	if len(p.probes) != 2 {
		t.Fatalf("got %d probes, expected 2", len(p.probes))
	}
	if s := logBuf.String(); strings.Count(s, "level=WARN") != 4 || !strings.Contains(s, `probe=broken`) {
		t.Errorf("unexpected log output:\n%s", s)
	}

	states := map[int]bool{}
	get := func(i int) bool { return states[i] }

	td := []struct {
		a, b    bool
		printed string
	}{
		{false, false, "     1: A=0 bee=0\n"},
		{false, false, ""},
		{true, false, "     3: A=1 bee=0\n"},
		{true, true, "     4: A=1 bee=1\n"},
		{true, true, ""},
	}
	for i, d := range td {
		out.Reset()
		states[c.Root().Pin("a")], states[c.Root().Pin("b")] = d.a, d.b
		if p.update(i+1, get) != (d.printed != "") {
			t.Errorf("cycle %d: unexpected update result", i+1)
		}
		if out.String() != d.printed {
			t.Errorf("cycle %d: printed %q, expected %q", i+1, out.String(), d.printed)
		}
	}
}

func TestPanel_empty(t *testing.T) {
	var out bytes.Buffer
	p := &panel{w: &out}
	if p.update(1, func(int) bool { return true }) || out.Len() != 0 {
		t.Fatal("empty panel printed something")
	}
}
