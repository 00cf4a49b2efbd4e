package hwtest_test

import (
	"testing"

	"github.com/db47h/devsim"
	"github.com/db47h/devsim/hwlib"
	"github.com/db47h/devsim/hwtest"
)

func TestComparePart(t *testing.T) {
	or := devsim.Chip("custom_or", "a,b", "out", devsim.Parts{
		{New: hwlib.Nand, Conns: "a=a, b=a, out=notA"},
		{New: hwlib.Nand, Conns: "a=b, b=b, out=notB"},
		{New: hwlib.Nand, Conns: "a=notA, b=notB, out=out"},
	})
	hwtest.ComparePart(t, "a, b", "out", hwlib.Or, or)
}

func TestTruthTable(t *testing.T) {
	hwtest.TruthTable(t, "a, b", "out", hwlib.Xor, [][]bool{{false, true, true, false}})
}

func TestWrap_errors(t *testing.T) {
	if _, err := hwtest.Wrap(hwlib.Not, "in[", "out"); err == nil {
		t.Fatal("expected error for malformed input declaration")
	}
	if _, err := hwtest.Wrap(hwlib.Not, "a", "out"); err == nil {
		t.Fatal("expected error for unknown pin")
	}
}
