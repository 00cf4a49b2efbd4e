// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package devsim

import (
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Updater is the interface that magic devices built using reflection must
// implement. See MakePart.
//
type Updater interface {
	Update(d *Device)
}

type field struct {
	index int
	pin   string
	bus   int // bus width, 0 for single pins
	in    bool
	slice bool // Bus field
}

var busType = reflect.TypeOf(Bus(nil))

// MakePart wraps an Updater into a magic device.
// Input/output pins are identified by field tags.
//
// The field tag must be `hw:"in"` or `hw:"out"` to identify input and output
// pins. By default, the pin name is the field name in lowercase. A specific
// pin name can be forced by adding it in the tag: `hw:"in,pin_name"`.
//
// Pin fields must be of type int. Buses are either arrays of int or Bus fields.
// The width of a Bus field is given as a third tag value: `hw:"in,data,8"`.
// Once the part is built, these fields hold the pin port indices.
//
// Each call to the returned PartFn creates a new instance of the underlying
// type. If that type implements io.Closer, it is closed when the circuit is
// disposed.
//
func MakePart(t Updater) PartFn {
	typ := reflect.TypeOf(t)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if k := typ.Kind(); k != reflect.Struct {
		panic(errors.Errorf("unsupported type %q for %q", k, typ.Name()))
	}

	var (
		fields  []field
		in, out []string
	)
	n := typ.NumField()
	for i := 0; i < n; i++ {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("hw")
		if !ok {
			continue
		}
		fd := field{index: i, pin: strings.ToLower(f.Name)}
		tv := strings.Split(tag, ",")
		if len(tv) > 1 && tv[1] != "" {
			fd.pin = tv[1]
		}
		switch tv[0] {
		case "in":
			fd.in = true
		case "out":
		default:
			panic(errors.Errorf("unsupported tag %q for field %q in %q", tag, f.Name, typ.Name()))
		}

		decl := fd.pin
		ft := f.Type
		if k := ft.Kind(); k == reflect.Array && ft.Elem().Kind() == reflect.Int {
			fd.bus = ft.Len()
			decl += "[" + strconv.Itoa(fd.bus) + "]"
		} else if ft == busType {
			if len(tv) < 3 {
				panic(errors.Errorf("missing bus width in tag %q for field %q in %q", tag, f.Name, typ.Name()))
			}
			w, err := strconv.Atoi(tv[2])
			if err != nil || w < 1 || w > 64 {
				panic(errors.Errorf("invalid bus width in tag %q for field %q in %q", tag, f.Name, typ.Name()))
			}
			fd.bus, fd.slice = w, true
			decl += "[" + tv[2] + "]"
		} else if k != reflect.Int {
			panic(errors.Errorf("unsupported type %q for field %q in %q", k, f.Name, typ.Name()))
		}
		if fd.in {
			in = append(in, decl)
		} else {
			out = append(out, decl)
		}
		fields = append(fields, fd)
	}

	name := typ.Name()
	return func(parent *Device, conns string) (*Device, error) {
		v := reflect.New(typ)
		p := &reflectPart{v: v, fields: fields, u: v.Interface().(Updater)}
		return New(parent, Config{Name: name, Kind: Magic, Inputs: in, Outputs: out}, p, conns)
	}
}

type reflectPart struct {
	v      reflect.Value
	fields []field
	u      Updater
}

func (p *reflectPart) Build(d *Device) error {
	e := p.v.Elem()
	for _, f := range p.fields {
		fv := e.Field(f.index)
		if f.bus == 0 {
			fv.SetInt(int64(d.Pin(f.pin)))
			continue
		}
		b := d.Bus(f.pin)
		if f.slice {
			fv.Set(reflect.ValueOf(append(Bus(nil), b...)))
			continue
		}
		for i := range b {
			fv.Index(i).SetInt(int64(b[i]))
		}
	}
	d.MarkDriven()
	return nil
}

func (p *reflectPart) Solve(d *Device) { p.u.Update(d) }

func (p *reflectPart) Close() error {
	if c, ok := p.u.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
