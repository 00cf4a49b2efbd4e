// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hdl implements the lexer and parsers for pin declarations and
// connection descriptions.
//
package hdl

import (
	"github.com/pkg/errors"
)

// Pin is a simple pin name
//
type Pin struct {
	Name string
	Pos  Pos
}

// PinIndex is an indexed pin p[index]
//
type PinIndex struct {
	Pin
	Index int
}

// PinRange is a pin range p[start..end]
//
type PinRange struct {
	Pin
	Start int
	End   int
}

// PinAssignment is a part pin to chip pin assignment. pp=pc
//
type PinAssignment struct {
	LHS interface{}
	RHS interface{}
}

// Decl is a pin or bus declaration. Size is 0 for single pins.
//
type Decl struct {
	Name string
	Size int
	Pos  Pos
}

// ParseIO parses a pin declaration list like "clk, addr[8], din[8]".
//
func ParseIO(input string) ([]Decl, error) {
	var out []Decl

	l := NewLexer(input)

	i := l.Lex()
	if i.Type == EOF {
		return nil, nil
	}
	for {
		if i.Type != Ident {
			return nil, parseError(input, i.Pos, "expected pin name")
		}
		d := Decl{Name: i.Value.(string), Pos: i.Pos}
		// after ident, expect comma, [ or EOF
		i = l.Lex()
		if i.Type == BracketOpen {
			i = l.Lex()
			if i.Type != Int {
				return nil, parseError(input, i.Pos, "missing bus size")
			}
			d.Size = i.Value.(int)
			if d.Size == 0 {
				return nil, parseError(input, i.Pos, "bus size must be greater than 0")
			}
			i = l.Lex()
			if i.Type != BracketClose {
				return nil, parseError(input, i.Pos, "missing close bracket")
			}
			i = l.Lex()
		}
		out = append(out, d)
		switch i.Type {
		case EOF:
			return out, nil
		case Comma:
			i = l.Lex()
		default:
			return nil, parseError(input, i.Pos, "expected comma or end of input")
		}
	}
}

// Parser is a simplistic parser for connection descriptions.
//
type Parser struct {
	Input string
	l     *Lexer
	i     Item
	state int
}

const (
	stateInit = iota
	stateStarted
	stateDone
)

// Next returns the next item in the input stream. It returns a
// PinAssignment, or nil at the end of input.
//
func (p *Parser) Next() (*PinAssignment, error) {
	if p.state == stateDone {
		return nil, nil
	}
	if p.l == nil {
		p.l = NewLexer(p.Input)
	}

	p.i = p.l.Lex()
	if p.state == stateInit && p.i.Type == EOF {
		p.state = stateDone
		return nil, nil
	}
	p.state = stateStarted

	lhs, err := p.getPin()
	if err != nil {
		p.state = stateDone
		return nil, err
	}
	if p.i.Type != Equal {
		p.state = stateDone
		return nil, parseError(p.Input, p.i.Pos, "expected '=' after part pin name, got "+p.i.String())
	}

	p.i = p.l.Lex()
	rhs, err := p.getPin()
	if err != nil {
		p.state = stateDone
		return nil, err
	}
	switch p.i.Type {
	case EOF:
		p.state = stateDone
		fallthrough
	case Comma:
		return &PinAssignment{lhs, rhs}, nil
	}

	p.state = stateDone
	return nil, parseError(p.Input, p.i.Pos, "unexpected "+p.i.String())
}

func (p *Parser) getPin() (interface{}, error) {
	if p.i.Type != Ident {
		return nil, parseError(p.Input, p.i.Pos, "expected pin name")
	}
	pin := Pin{p.i.Value.(string), p.i.Pos}
	// after ident, expect ',', '[', '=' or EOF
	p.i = p.l.Lex()
	if p.i.Type != BracketOpen {
		return pin, nil
	}
	p.i = p.l.Lex()
	if p.i.Type != Int {
		return nil, parseError(p.Input, p.i.Pos, "integer value expected after '['")
	}
	start := p.i.Value.(int)
	end := -1
	p.i = p.l.Lex()
	if p.i.Type == Range {
		p.i = p.l.Lex()
		if p.i.Type != Int {
			return nil, parseError(p.Input, p.i.Pos, "integer value expected after '..'")
		}
		end = p.i.Value.(int)
		p.i = p.l.Lex()
	}
	if p.i.Type != BracketClose {
		return nil, parseError(p.Input, p.i.Pos, "closing ']' expected after index or range")
	}
	p.i = p.l.Lex()
	if end >= 0 {
		if end < start {
			return nil, parseError(p.Input, pin.Pos, "invalid range "+pin.Name)
		}
		return PinRange{pin, start, end}, nil
	}
	return PinIndex{pin, start}, nil
}

func parseError(in string, pos Pos, msg string) error {
	return errors.Errorf("in %q at pos %d: %s", in, pos+1, msg)
}
