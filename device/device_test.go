package device

import (
	"testing"

	"rdrive-go/types"
)

type fakeTimer struct{ ticks uint64 }

func TestNextIDMonotonic(t *testing.T) {
	a, b := NextID(), NextID()
	if a == 0 || b <= a {
		t.Fatalf("ids not increasing: %d, %d", a, b)
	}
}

func TestContainerInsertGet(t *testing.T) {
	c := NewContainer[*fakeTimer]()
	id := NextID()
	c.Insert(New(types.Descriptor{ID: id, Name: "armv8-timer", Kind: types.KindTimer}, &fakeTimer{ticks: 9}))

	w, ok := c.Get(id)
	if !ok {
		t.Fatal("device not found")
	}
	if w.Descriptor.Name != "armv8-timer" || w.ID() != id {
		t.Fatalf("descriptor = %+v", w.Descriptor)
	}
	g, err := w.TryBorrow(1)
	if err != nil {
		t.Fatal(err)
	}
	if (*g.Value()).ticks != 9 {
		t.Fatal("payload lost")
	}
	g.Release()

	if _, ok := c.Get(id + 1000); ok {
		t.Fatal("unexpected device")
	}
}

func TestContainerAllSortedByID(t *testing.T) {
	c := NewContainer[int]()
	ids := []types.DeviceID{NextID(), NextID(), NextID()}
	for i := len(ids) - 1; i >= 0; i-- {
		c.Insert(New(types.Descriptor{ID: ids[i]}, i))
	}
	all := c.All()
	if len(all) != 3 || c.Len() != 3 {
		t.Fatalf("len = %d", len(all))
	}
	for i, w := range all {
		if w.ID() != ids[i] {
			t.Fatalf("All()[%d] = %d, want %d", i, w.ID(), ids[i])
		}
	}
	if d := c.Descriptors(); d[0].ID != ids[0] {
		t.Fatal("descriptors unsorted")
	}
}

func TestWeakBorrowSharesLock(t *testing.T) {
	d := New(types.Descriptor{ID: NextID()}, 1)
	w1, w2 := d.Weak(), d.Weak()
	g, err := w1.TryBorrow(d.Owner())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w2.TryBorrow(99); err == nil {
		t.Fatal("second weak handle borrowed concurrently")
	}
	g.Release()
	if g := w2.SpinTryBorrow(99); g == nil {
		t.Fatal("spin borrow failed while device alive")
	} else {
		g.Release()
	}
	_ = d.Lock()
}
