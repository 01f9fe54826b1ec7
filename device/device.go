// Package device holds probed devices: the handle pairing a descriptor with
// its driver's Lock, and the per-kind containers the Manager fills.
package device

import (
	"sync/atomic"

	"rdrive-go/lock"
	"rdrive-go/types"
)

var lastID atomic.Uint64

// NextID returns a fresh process-wide DeviceID. IDs start at 1 and are never
// reused.
func NextID() types.DeviceID {
	return types.DeviceID(lastID.Add(1))
}

// Device owns one driver instance exclusively.
type Device[T any] struct {
	Descriptor types.Descriptor
	lock       *lock.Lock[T]
}

// New wraps drv in a fresh Lock.
func New[T any](desc types.Descriptor, drv T) Device[T] {
	return Device[T]{Descriptor: desc, lock: lock.New(drv)}
}

// ID returns the descriptor's device id.
func (d Device[T]) ID() types.DeviceID { return d.Descriptor.ID }

// Lock returns the strong handle. Only the container should hold it.
func (d Device[T]) Lock() *lock.Lock[T] { return d.lock }

// Owner is the borrower id a device uses when it borrows another device.
func (d Device[T]) Owner() lock.Owner { return lock.Owner(d.Descriptor.ID) }

// Weak returns the non-owning handle handed to callers.
func (d Device[T]) Weak() Weak[T] {
	return Weak[T]{Descriptor: d.Descriptor, Lock: d.lock.Weak()}
}

// Weak is what accessors return: the descriptor plus a weak Lock reference.
type Weak[T any] struct {
	Descriptor types.Descriptor
	Lock       lock.Weak[T]
}

// ID returns the descriptor's device id.
func (w Weak[T]) ID() types.DeviceID { return w.Descriptor.ID }

// TryBorrow upgrades and borrows in one step.
func (w Weak[T]) TryBorrow(o lock.Owner) (*lock.Guard[T], error) {
	return w.Lock.TryBorrow(o)
}

// SpinTryBorrow upgrades and spins; nil if the device is gone.
func (w Weak[T]) SpinTryBorrow(o lock.Owner) *lock.Guard[T] {
	return w.Lock.SpinTryBorrow(o)
}
