package fdt

import (
	"bytes"
	"encoding/binary"

	"rdrive-go/errcode"
	"rdrive-go/types"
)

type parser struct {
	st      []byte
	strings []byte
	off     int
}

func (p *parser) u32() (uint32, bool) {
	if p.off+4 > len(p.st) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(p.st[p.off:])
	p.off += 4
	return v, true
}

func (p *parser) align() {
	p.off = (p.off + 3) &^ 3
}

func (p *parser) cstring(b []byte, off int) (string, bool) {
	if off < 0 || off >= len(b) {
		return "", false
	}
	n := bytes.IndexByte(b[off:], 0)
	if n < 0 {
		return "", false
	}
	return string(b[off : off+n]), true
}

func (p *parser) run() (*Tree, error) {
	t := &Tree{
		byPhandle: map[types.Phandle]*Node{},
		byPath:    map[string]*Node{},
	}
	var stack []*Node

	for {
		tag, ok := p.u32()
		if !ok {
			return nil, errcode.FdtErr("fdt", "structure block truncated")
		}
		switch tag {
		case tokenBeginNode:
			name, ok := p.cstring(p.st, p.off)
			if !ok {
				return nil, errcode.FdtErr("fdt", "unterminated node name")
			}
			p.off += len(name) + 1
			p.align()
			if len(stack) >= maxDepth {
				return nil, errcode.FdtErr("fdt", "tree too deep")
			}
			n := &Node{name: name, tree: t}
			if len(stack) == 0 {
				if t.root != nil {
					return nil, errcode.FdtErr("fdt", "multiple root nodes")
				}
				n.path = "/"
				t.root = n
			} else {
				parent := stack[len(stack)-1]
				n.parent = parent
				n.path = joinPath(parent.path, name)
				parent.children = append(parent.children, n)
			}
			t.nodes = append(t.nodes, n)
			stack = append(stack, n)

		case tokenEndNode:
			if len(stack) == 0 {
				return nil, errcode.FdtErr("fdt", "unbalanced end node")
			}
			stack = stack[:len(stack)-1]

		case tokenProp:
			if len(stack) == 0 {
				return nil, errcode.FdtErr("fdt", "property outside node")
			}
			plen, ok1 := p.u32()
			nameOff, ok2 := p.u32()
			if !ok1 || !ok2 || p.off+int(plen) > len(p.st) {
				return nil, errcode.FdtErr("fdt", "property truncated")
			}
			name, ok := p.cstring(p.strings, int(nameOff))
			if !ok {
				return nil, errcode.FdtErr("fdt", "bad property name offset")
			}
			n := stack[len(stack)-1]
			n.props = append(n.props, Property{Name: name, Value: p.st[p.off : p.off+int(plen)]})
			p.off += int(plen)
			p.align()

		case tokenNop:

		case tokenEnd:
			if len(stack) != 0 || t.root == nil {
				return nil, errcode.FdtErr("fdt", "unbalanced tree")
			}
			t.index()
			return t, nil

		default:
			return nil, errcode.FdtErr("fdt", "unknown structure token")
		}
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
