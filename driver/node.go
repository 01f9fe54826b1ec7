package driver

import (
	"iter"

	"rdrive-go/types"
)

// Region is one decoded `reg` entry.
type Region struct {
	Addr uint64
	Size uint64
}

// Node is the view of one hardware-description tree node a probe needs.
type Node interface {
	Name() string
	Path() string
	// Compatibles returns the node's `compatible` list in property order.
	Compatibles() []string
	Phandle() (types.Phandle, bool)
	// InterruptParent resolves the node's own or inherited
	// `interrupt-parent` reference.
	InterruptParent() (Node, bool)
	// Interrupts returns the raw `interrupts` cells grouped per specifier.
	Interrupts() [][]uint32
	Parent() (Node, bool)
	Reg() []Region
	Property(name string) ([]byte, bool)
}

// Tree is the parsed hardware-description tree.
type Tree interface {
	// Nodes yields every node exactly once in document order.
	Nodes() iter.Seq[Node]
	ByPhandle(p types.Phandle) (Node, bool)
	ByPath(path string) (Node, bool)
}

// BusAddr returns the address of a node on its parent bus: the first `reg`
// cell under a controller with #address-cells = 1 and #size-cells = 0.
func BusAddr(n Node) (uint16, bool) {
	reg := n.Reg()
	if len(reg) == 0 || reg[0].Addr > 0x3ff {
		return 0, false
	}
	return uint16(reg[0].Addr), true
}

// ParentPath returns the path of n's parent, or "" at the root.
func ParentPath(n Node) string {
	if p, ok := n.Parent(); ok {
		return p.Path()
	}
	return ""
}
