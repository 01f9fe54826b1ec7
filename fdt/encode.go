package fdt

import (
	"encoding/binary"

	"rdrive-go/errcode"
)

// Spec describes a node to encode. Properties keep their order.
type Spec struct {
	Name     string
	Props    []Prop
	Children []Spec
}

// Prop is one property to encode.
type Prop struct {
	Name  string
	Value []byte
}

// Empty is a boolean (valueless) property.
func Empty(name string) Prop { return Prop{Name: name} }

// Str is a single string property.
func Str(name, s string) Prop { return Strs(name, s) }

// Strs is a NUL separated string list property such as `compatible`.
func Strs(name string, ss ...string) Prop {
	var b []byte
	for _, s := range ss {
		b = append(b, s...)
		b = append(b, 0)
	}
	return Prop{Name: name, Value: b}
}

// U32 is a list of 32-bit cells.
func U32(name string, cells ...uint32) Prop {
	b := make([]byte, 4*len(cells))
	for i, c := range cells {
		binary.BigEndian.PutUint32(b[i*4:], c)
	}
	return Prop{Name: name, Value: b}
}

// U64 is a list of 64-bit values, each two cells.
func U64(name string, vals ...uint64) Prop {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(b[i*8:], v)
	}
	return Prop{Name: name, Value: b}
}

type encoder struct {
	st      []byte
	strings []byte
	strOff  map[string]uint32
}

func (e *encoder) u32(v uint32) {
	e.st = binary.BigEndian.AppendUint32(e.st, v)
}

func (e *encoder) pad() {
	for len(e.st)%4 != 0 {
		e.st = append(e.st, 0)
	}
}

func (e *encoder) nameOff(name string) uint32 {
	if off, ok := e.strOff[name]; ok {
		return off
	}
	off := uint32(len(e.strings))
	e.strings = append(e.strings, name...)
	e.strings = append(e.strings, 0)
	e.strOff[name] = off
	return off
}

func (e *encoder) node(s Spec, depth int) error {
	if depth > maxDepth {
		return errcode.FdtErr("fdt encode", "tree too deep")
	}
	e.u32(tokenBeginNode)
	e.st = append(e.st, s.Name...)
	e.st = append(e.st, 0)
	e.pad()
	for _, p := range s.Props {
		if p.Name == "" {
			return errcode.FdtErr("fdt encode", "empty property name in "+s.Name)
		}
		e.u32(tokenProp)
		e.u32(uint32(len(p.Value)))
		e.u32(e.nameOff(p.Name))
		e.st = append(e.st, p.Value...)
		e.pad()
	}
	for _, c := range s.Children {
		if err := e.node(c, depth+1); err != nil {
			return err
		}
	}
	e.u32(tokenEndNode)
	return nil
}

// Encode serialises root (whose Name should be empty) into a version 17 blob
// with an empty memory reservation map.
func Encode(root Spec) ([]byte, error) {
	e := encoder{strOff: map[string]uint32{}}
	if err := e.node(root, 0); err != nil {
		return nil, err
	}
	e.u32(tokenEnd)

	const rsvmapSize = 16 // one terminating {0, 0} entry
	offRsv := uint32(headerSize)
	offStruct := offRsv + rsvmapSize
	offStrings := offStruct + uint32(len(e.st))
	total := offStrings + uint32(len(e.strings))

	out := make([]byte, headerSize+rsvmapSize, total)
	for i, v := range []uint32{
		Magic, total, offStruct, offStrings, offRsv,
		encodedVersion, minVersion, 0, uint32(len(e.strings)), uint32(len(e.st)),
	} {
		binary.BigEndian.PutUint32(out[i*4:], v)
	}
	out = append(out, e.st...)
	out = append(out, e.strings...)
	return out, nil
}
