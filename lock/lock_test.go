package lock

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"rdrive-go/errcode"
)

type uartState struct {
	tx   []byte
	name *string
}

func TestTryBorrowExclusive(t *testing.T) {
	l := New(uartState{})

	g, err := l.TryBorrow(1)
	if err != nil {
		t.Fatalf("first borrow: %v", err)
	}

	_, err = l.TryBorrow(2)
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("second borrow: want BusyError, got %v", err)
	}
	if busy.Owner != 1 {
		t.Fatalf("busy owner = %d, want 1", busy.Owner)
	}
	if !errors.Is(err, errcode.Busy) || errcode.Of(err) != errcode.Busy {
		t.Fatal("busy error must carry errcode.Busy")
	}

	g.Release()
	g2, err := l.TryBorrow(2)
	if err != nil {
		t.Fatalf("borrow after release: %v", err)
	}
	if g2.Owner() != 2 {
		t.Fatalf("owner = %d, want 2", g2.Owner())
	}
	g2.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	l := New(0)
	g, _ := l.TryBorrow(1)
	g.Release()

	g2, err := l.TryBorrow(2)
	if err != nil {
		t.Fatal(err)
	}
	g.Release() // stale guard must not release g2's borrow
	if o, ok := l.Borrowed(); !ok || o != 2 {
		t.Fatalf("Borrowed() = %d,%v want 2,true", o, ok)
	}
	g2.Release()
	if _, ok := l.Borrowed(); ok {
		t.Fatal("still borrowed after release")
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	l := New(uartState{})
	func() {
		defer func() { _ = recover() }()
		_ = With(l, 5, func(s *uartState) error {
			s.tx = append(s.tx, 'x')
			panic("driver fault")
		})
	}()
	if _, ok := l.Borrowed(); ok {
		t.Fatal("guard leaked across panic")
	}

	sentinel := errors.New("write failed")
	if err := With(l, 5, func(*uartState) error { return sentinel }); err != sentinel {
		t.Fatalf("With() = %v", err)
	}
	if _, ok := l.Borrowed(); ok {
		t.Fatal("guard leaked on error return")
	}
}

func TestGuardMutatesPayload(t *testing.T) {
	l := New(uartState{})
	g := l.SpinTryBorrow(1)
	g.Value().tx = []byte("hi")
	g.Release()

	g = l.SpinTryBorrow(2)
	defer g.Release()
	if string(g.Value().tx) != "hi" {
		t.Fatalf("payload = %q", g.Value().tx)
	}
}

func TestSpinTryBorrowWaitsForRelease(t *testing.T) {
	l := New(0)
	g, _ := l.TryBorrow(1)

	var wg sync.WaitGroup
	got := make(chan Owner, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		g2 := l.SpinTryBorrow(2)
		got <- g2.Owner()
		g2.Release()
	}()

	select {
	case <-got:
		t.Fatal("spinner acquired while guard alive")
	case <-time.After(20 * time.Millisecond):
	}
	g.Release()
	wg.Wait()
	if o := <-got; o != 2 {
		t.Fatalf("spinner owner = %d", o)
	}
}

func TestInterruptContextBypassesBorrow(t *testing.T) {
	l := New(uartState{})
	g, _ := l.TryBorrow(1)
	defer g.Release()

	irq := l.InterruptContext()
	irq.Use().tx = append(irq.Use().tx, 0x55)

	if o, ok := l.Borrowed(); !ok || o != 1 {
		t.Fatal("interrupt access must not disturb the borrow")
	}
	if len(g.Value().tx) != 1 {
		t.Fatal("interrupt access did not reach the payload")
	}
}

func TestWeakUpgrade(t *testing.T) {
	l := New(uartState{})
	w := l.Weak()

	up, ok := w.Upgrade()
	if !ok || up != l {
		t.Fatal("upgrade failed while strong owner alive")
	}
	g, err := w.TryBorrow(3)
	if err != nil {
		t.Fatal(err)
	}
	g.Release()
	runtime.KeepAlive(l)
}

func TestWeakDoesNotExtendLifetime(t *testing.T) {
	name := "pl011"
	w := func() Weak[uartState] {
		return New(uartState{name: &name}).Weak()
	}()
	runtime.GC()
	runtime.GC()

	if _, ok := w.Upgrade(); ok {
		t.Fatal("weak handle kept the lock alive")
	}
	if _, err := w.TryBorrow(1); !errors.Is(err, errcode.NotFound) {
		t.Fatalf("TryBorrow on dead weak = %v", err)
	}
	if w.SpinTryBorrow(1) != nil {
		t.Fatal("SpinTryBorrow on dead weak must return nil")
	}
}
