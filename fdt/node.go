package fdt

import (
	"encoding/binary"
	"strings"

	"rdrive-go/driver"
	"rdrive-go/types"
	"rdrive-go/x/strx"
)

// Property is a raw name/value pair.
type Property struct {
	Name  string
	Value []byte
}

// Node is one tree node.
type Node struct {
	name     string
	path     string
	props    []Property
	parent   *Node
	children []*Node
	tree     *Tree
}

var _ driver.Node = (*Node)(nil)

func (n *Node) Name() string      { return n.name }
func (n *Node) Path() string      { return n.path }
func (n *Node) Children() []*Node { return n.children }
func (n *Node) Props() []Property { return n.props }

func (n *Node) Parent() (driver.Node, bool) {
	if n.parent == nil {
		return nil, false
	}
	return n.parent, true
}

func (n *Node) Property(name string) ([]byte, bool) {
	for _, p := range n.props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// PropertyString returns the first string of a string property.
func (n *Node) PropertyString(name string) (string, bool) {
	v, ok := n.Property(name)
	if !ok {
		return "", false
	}
	s := splitStrings(v)
	if len(s) == 0 {
		return "", true
	}
	return s[0], true
}

// PropertyU32 returns a single-cell property.
func (n *Node) PropertyU32(name string) (uint32, bool) {
	v, ok := n.Property(name)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Cells returns a property as big-endian 32-bit cells.
func (n *Node) Cells(name string) ([]uint32, bool) {
	v, ok := n.Property(name)
	if !ok || len(v)%4 != 0 {
		return nil, false
	}
	out := make([]uint32, len(v)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(v[i*4:])
	}
	return out, true
}

func (n *Node) Compatibles() []string {
	v, ok := n.Property("compatible")
	if !ok {
		return nil
	}
	return splitStrings(v)
}

func (n *Node) Phandle() (types.Phandle, bool) {
	for _, name := range []string{"phandle", "linux,phandle"} {
		if v, ok := n.PropertyU32(name); ok {
			return types.Phandle(v), true
		}
	}
	return 0, false
}

// InterruptParent follows `interrupt-parent` on n or its nearest ancestor
// carrying one.
func (n *Node) InterruptParent() (driver.Node, bool) {
	ip, ok := n.interruptParent()
	if !ok {
		return nil, false
	}
	return ip, true
}

func (n *Node) interruptParent() (*Node, bool) {
	for cur := n; cur != nil; cur = cur.parent {
		ph, ok := cur.PropertyU32("interrupt-parent")
		if !ok {
			continue
		}
		ip, ok := n.tree.byPhandle[types.Phandle(ph)]
		return ip, ok
	}
	return nil, false
}

// Interrupts groups the `interrupts` cells by the interrupt parent's
// `#interrupt-cells`. Without a usable parent the whole property is one group.
func (n *Node) Interrupts() [][]uint32 {
	cells, ok := n.Cells("interrupts")
	if !ok || len(cells) == 0 {
		return nil
	}
	width := 0
	if ip, ok := n.interruptParent(); ok {
		if w, ok := ip.PropertyU32("#interrupt-cells"); ok {
			width = int(w)
		}
	}
	if width <= 0 || len(cells)%width != 0 {
		return [][]uint32{cells}
	}
	out := make([][]uint32, 0, len(cells)/width)
	for i := 0; i < len(cells); i += width {
		out = append(out, cells[i:i+width])
	}
	return out
}

// Reg decodes `reg` using the parent's #address-cells and #size-cells.
func (n *Node) Reg() []driver.Region {
	cells, ok := n.Cells("reg")
	if !ok {
		return nil
	}
	ac, sc := uint32(2), uint32(1)
	if n.parent != nil {
		if v, ok := n.parent.PropertyU32("#address-cells"); ok {
			ac = v
		}
		if v, ok := n.parent.PropertyU32("#size-cells"); ok {
			sc = v
		}
	}
	stride := int(ac + sc)
	if stride == 0 || ac > 2 || sc > 2 || len(cells)%stride != 0 {
		return nil
	}
	out := make([]driver.Region, 0, len(cells)/stride)
	for i := 0; i < len(cells); i += stride {
		out = append(out, driver.Region{
			Addr: joinCells(cells[i : i+int(ac)]),
			Size: joinCells(cells[i+int(ac) : i+stride]),
		})
	}
	return out
}

// joinCells folds big-endian cells into one value, most significant first.
func joinCells(cells []uint32) uint64 {
	var v uint64
	for _, c := range cells {
		v = v<<32 | uint64(c)
	}
	return v
}

func splitStrings(v []byte) []string {
	s := strx.TrimNUL(string(v))
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}
