// bus/bus_test.go
package bus

import (
	"sort"
	"testing"
	"time"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("dev", "intc", 1))
	conn.Publish(conn.NewMessage(T("dev", "intc", 1), "gic", false))

	expectOneOf(t, sub, "gic")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(b.NewMessage(T("dev", "timer", 2), "persist", true))
	sub := conn.Subscribe(T("dev", "timer", 2))

	expectOneOf(t, sub, "persist")
}

func TestWildcardSingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sKind := c.Subscribe(T("dev", Single, 1))
	sAny := c.Subscribe(T("dev", Single, Single))
	sIntc := c.Subscribe(T("dev", "intc", Single))
	sNo := c.Subscribe(T("dev", Single, 9))

	c.Publish(b.NewMessage(T("dev", "intc", 1), "m1", false))
	expectOneOf(t, sKind, "m1")
	expectOneOf(t, sAny, "m1")
	expectOneOf(t, sIntc, "m1")
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(T("dev", "timer", 2), "m2", false))
	expectOneOf(t, sAny, "m2")
	expectNoMessage(t, sKind)
	expectNoMessage(t, sIntc)

	c.Publish(b.NewMessage(T("dev", "timer"), "m3", false))
	expectNoMessage(t, sAny)
}

func TestWildcardMultiLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sDev := c.Subscribe(T("dev", Multi))
	sAll := c.Subscribe(T(Multi))
	sExact := c.Subscribe(T("dev"))

	c.Publish(b.NewMessage(T("dev"), "p1", false))
	expectOneOf(t, sDev, "p1")
	expectOneOf(t, sAll, "p1")
	expectOneOf(t, sExact, "p1")

	c.Publish(b.NewMessage(T("dev", "serial", 4), "p2", false))
	expectOneOf(t, sDev, "p2")
	expectOneOf(t, sAll, "p2")
	expectNoMessage(t, sExact)
}

func TestWildcardRetainedDelivery(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("dev", "intc", 1), "r1", true))
	c.Publish(b.NewMessage(T("dev", "timer", 2), "r2", true))
	c.Publish(b.NewMessage(T("dev", "timer", 3), "r3", true))

	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(T("dev", Multi)), 3), []string{"r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(T("dev", "timer", Single)), 2), []string{"r2", "r3"})
}

func TestRetainedClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("dev", "intc", 1), "keep", true))
	c.Publish(b.NewMessage(T("dev", "intc", 2), "other", true))
	c.Publish(b.NewMessage(T("dev", "intc", 1), nil, true))

	got := drainPayloads(t, c.Subscribe(T("dev", Multi)), 1)
	if got[0] != "other" {
		t.Fatalf("expected only 'other' after clear, got %v", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s := c.Subscribe(T("dev", Multi))
	s.Unsubscribe()
	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel still open")
	}
	c.Publish(b.NewMessage(T("dev", "x"), "late", false)) // must not panic
}

func TestDropOldestWhenFull(t *testing.T) {
	b := NewBus(1)
	c := b.NewConnection("test")
	s := c.Subscribe(T("probe", "error"))
	c.Publish(b.NewMessage(T("probe", "error"), "old", false))
	c.Publish(b.NewMessage(T("probe", "error"), "new", false))
	expectOneOf(t, s, "new")
}

func TestDisconnect(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("cli")
	s1 := c.Subscribe(T("a"))
	s2 := c.Subscribe(T("b"))
	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatal("subscription not closed")
		}
	}
}

func TestInvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()
	_ = T([]byte{1, 2, 3})
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
