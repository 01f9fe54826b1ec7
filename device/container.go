package device

import (
	"slices"

	"rdrive-go/types"
)

// Container maps DeviceID to Device for one kind. It is not locked; its
// owner serialises access.
type Container[T any] struct {
	devs map[types.DeviceID]Device[T]
}

func NewContainer[T any]() *Container[T] {
	return &Container[T]{devs: map[types.DeviceID]Device[T]{}}
}

// Insert stores d under its id, replacing nothing: ids are unique.
func (c *Container[T]) Insert(d Device[T]) {
	c.devs[d.ID()] = d
}

// Get returns a weak handle to the device with id.
func (c *Container[T]) Get(id types.DeviceID) (Weak[T], bool) {
	d, ok := c.devs[id]
	if !ok {
		return Weak[T]{}, false
	}
	return d.Weak(), true
}

// All returns weak handles to every device, ordered by id.
func (c *Container[T]) All() []Weak[T] {
	ids := make([]types.DeviceID, 0, len(c.devs))
	for id := range c.devs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Weak[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, c.devs[id].Weak())
	}
	return out
}

// Descriptors returns every descriptor, ordered by id.
func (c *Container[T]) Descriptors() []types.Descriptor {
	all := c.All()
	out := make([]types.Descriptor, len(all))
	for i, w := range all {
		out[i] = w.Descriptor
	}
	return out
}

func (c *Container[T]) Len() int { return len(c.devs) }
