// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import (
	"strconv"

	"github.com/db47h/devsim/internal/hdl"
)

// Bus is the ordered port index table of a bus. Bit i of the bus value is
// carried by pin Bus[i], least significant bit first.
//
type Bus []int

// Width returns the bus width in bits.
//
func (b Bus) Width() int { return len(b) }

// Max returns the largest value representable on the bus.
//
func (b Bus) Max() uint64 {
	if len(b) >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(len(b)) - 1
}

// BusPinName returns the name of pin i of the bus with the given prefix.
//
func BusPinName(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

func decode(b Bus, get func(int) bool) uint64 {
	var v uint64
	for bit, p := range b {
		if get(p) {
			v |= 1 << uint(bit)
		}
	}
	return v
}

func encode(b Bus, v uint64, set func(int, bool)) {
	for bit, p := range b {
		set(p, v&(1<<uint(bit)) != 0)
	}
}

// ExpandIO expands pin declarations into individual pin names. Bus
// declarations like "addr[4]" are expanded to "addr0", "addr1", etc.
//
func ExpandIO(decls ...string) ([]string, error) {
	var out []string
	for _, s := range decls {
		ds, err := hdl.ParseIO(s)
		if err != nil {
			return nil, err
		}
		for _, d := range ds {
			if d.Size == 0 {
				out = append(out, d.Name)
				continue
			}
			for i := 0; i < d.Size; i++ {
				out = append(out, BusPinName(d.Name, i))
			}
		}
	}
	return out, nil
}
