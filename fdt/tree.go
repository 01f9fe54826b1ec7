package fdt

import (
	"iter"

	"rdrive-go/driver"
	"rdrive-go/types"
)

// Tree is a parsed device tree.
type Tree struct {
	root      *Node
	nodes     []*Node
	byPhandle map[types.Phandle]*Node
	byPath    map[string]*Node
}

var _ driver.Tree = (*Tree)(nil)

func (t *Tree) index() {
	for _, n := range t.nodes {
		t.byPath[n.path] = n
		if ph, ok := n.Phandle(); ok {
			t.byPhandle[ph] = n
		}
	}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// All returns every node in document order.
func (t *Tree) All() []*Node { return t.nodes }

// Nodes yields every node once in document order.
func (t *Tree) Nodes() iter.Seq[driver.Node] {
	return func(yield func(driver.Node) bool) {
		for _, n := range t.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

func (t *Tree) ByPhandle(p types.Phandle) (driver.Node, bool) {
	n, ok := t.byPhandle[p]
	if !ok {
		return nil, false
	}
	return n, true
}

func (t *Tree) ByPath(path string) (driver.Node, bool) {
	n, ok := t.byPath[path]
	if !ok {
		return nil, false
	}
	return n, true
}

// Chosen returns the /chosen node, if any.
func (t *Tree) Chosen() (*Node, bool) {
	n, ok := t.byPath["/chosen"]
	return n, ok
}
