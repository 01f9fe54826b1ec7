// Package lock provides the exclusive-borrow cell every probed driver lives
// in. Ordinary code borrows through TryBorrow/SpinTryBorrow and gets a Guard;
// interrupt handlers that must not spin use an IRQAccess instead.
package lock

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"weak"

	"rdrive-go/errcode"
)

// Owner identifies a borrower (a task, a device, a CPU). Zero means none.
type Owner uint64

// BusyError is returned by TryBorrow while another guard is alive.
type BusyError struct {
	Owner Owner // borrower at the time of the attempt
}

func (e *BusyError) Error() string {
	return "busy: borrowed by " + strconv.FormatUint(uint64(e.Owner), 10)
}

func (e *BusyError) Is(target error) bool { return target == errcode.Busy }
func (e *BusyError) Code() errcode.Code   { return errcode.Busy }

// Lock owns a driver value and hands out at most one Guard at a time.
// A Lock must not be copied after first use.
type Lock[T any] struct {
	borrowed atomic.Bool
	owner    atomic.Uint64
	data     T
}

// New returns an unowned Lock holding v.
func New[T any](v T) *Lock[T] {
	return &Lock[T]{data: v}
}

// TryBorrow attempts the unborrowed -> borrowed transition without blocking.
// On contention it reports the current borrower. The owner field is
// published after the flag, so a racing caller may briefly observe 0.
func (l *Lock[T]) TryBorrow(o Owner) (*Guard[T], error) {
	if !l.borrowed.CompareAndSwap(false, true) {
		return nil, &BusyError{Owner: Owner(l.owner.Load())}
	}
	l.owner.Store(uint64(o))
	return &Guard[T]{l: l}, nil
}

// SpinTryBorrow retries TryBorrow until it succeeds, yielding the processor
// between attempts. There is no fairness and no backoff: a borrower that
// keeps re-acquiring (an interrupt handler, a higher priority task) can
// starve the caller indefinitely.
func (l *Lock[T]) SpinTryBorrow(o Owner) *Guard[T] {
	for {
		if g, err := l.TryBorrow(o); err == nil {
			return g
		}
		runtime.Gosched()
	}
}

// Borrowed reports whether a guard is currently alive and who holds it.
func (l *Lock[T]) Borrowed() (Owner, bool) {
	if !l.borrowed.Load() {
		return 0, false
	}
	return Owner(l.owner.Load()), true
}

// Weak returns a handle that does not keep the Lock alive.
func (l *Lock[T]) Weak() Weak[T] {
	return Weak[T]{p: weak.Make(l)}
}

// InterruptContext returns the lock-bypassing capability for interrupt
// handlers. See IRQAccess.
func (l *Lock[T]) InterruptContext() IRQAccess[T] {
	return IRQAccess[T]{l: l}
}

// Guard is the scoped token for one borrow. Release it with defer.
type Guard[T any] struct {
	l *Lock[T]
}

// Value returns the borrowed payload. It must not be retained after Release.
func (g *Guard[T]) Value() *T {
	return &g.l.data
}

// Owner returns the borrower this guard was issued to.
func (g *Guard[T]) Owner() Owner {
	return Owner(g.l.owner.Load())
}

// Release clears the owner and the borrowed flag. Calling it more than once
// is a no-op.
func (g *Guard[T]) Release() {
	if g == nil || g.l == nil {
		return
	}
	l := g.l
	g.l = nil
	l.owner.Store(0)
	l.borrowed.Store(false)
}

// With borrows l for o, runs fn and releases on every exit path, panics
// included.
func With[T any](l *Lock[T], o Owner, fn func(*T) error) error {
	g, err := l.TryBorrow(o)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g.Value())
}

// Weak is a non-owning Lock reference.
type Weak[T any] struct {
	p weak.Pointer[Lock[T]]
}

// Upgrade returns the Lock if a strong owner still holds it.
func (w Weak[T]) Upgrade() (*Lock[T], bool) {
	l := w.p.Value()
	return l, l != nil
}

// TryBorrow upgrades and borrows in one step.
func (w Weak[T]) TryBorrow(o Owner) (*Guard[T], error) {
	l, ok := w.Upgrade()
	if !ok {
		return nil, &errcode.E{C: errcode.NotFound, Op: "lock", Msg: "device released"}
	}
	return l.TryBorrow(o)
}

// SpinTryBorrow upgrades and spins. It returns nil if the Lock is gone.
func (w Weak[T]) SpinTryBorrow(o Owner) *Guard[T] {
	l, ok := w.Upgrade()
	if !ok {
		return nil
	}
	return l.SpinTryBorrow(o)
}

// IRQAccess reaches the payload without taking part in the borrow protocol.
//
// It exists for interrupt handlers: spinning inside a handler on a lock held
// by the very code the interrupt preempted deadlocks. Holding an IRQAccess is
// a trust contract, not a checked one: the surrounding system must guarantee
// the handler never runs while a Guard on the same Lock is used.
type IRQAccess[T any] struct {
	l *Lock[T]
}

// Use returns the raw payload pointer.
func (a IRQAccess[T]) Use() *T {
	return &a.l.data
}
