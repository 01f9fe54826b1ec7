package driver

import (
	"testing"

	"rdrive-go/types"
)

type fakeNode struct {
	compat []string
}

func (n fakeNode) Name() string                   { return "n" }
func (n fakeNode) Path() string                   { return "/n" }
func (n fakeNode) Compatibles() []string          { return n.compat }
func (n fakeNode) Phandle() (types.Phandle, bool) { return 0, false }
func (n fakeNode) InterruptParent() (Node, bool)  { return nil, false }
func (n fakeNode) Interrupts() [][]uint32         { return nil }
func (n fakeNode) Parent() (Node, bool)           { return nil, false }
func (n fakeNode) Reg() []Region                  { return nil }
func (n fakeNode) Property(string) ([]byte, bool) { return nil, false }

func intcRegister(name string, compat ...string) Register {
	return Register{
		Name: name,
		Probes: []ProbeKind{{
			Compatibles: compat,
			OnProbe:     OnProbeIntc(func(Node) (Intc, error) { return nil, nil }),
		}},
	}
}

func TestUnregisteredInitiallyReturnsAllInOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(intcRegister("a", "x,a"))
	r.Append([]Register{intcRegister("b", "x,b"), intcRegister("c", "x,c")})

	got := r.Unregistered()
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, e := range got {
		if e.Index != i {
			t.Fatalf("entry %d has index %d", i, e.Index)
		}
	}
	if got[0].Register.Name != "a" || got[2].Register.Name != "c" {
		t.Fatalf("order lost: %+v", got)
	}
}

func TestSetProbedFilters(t *testing.T) {
	r := NewRegistry()
	r.Append([]Register{intcRegister("a"), intcRegister("b"), intcRegister("c")})

	r.SetProbed(1)
	r.SetProbed(1)
	r.SetProbed(7)  // out of range
	r.SetProbed(-1) // out of range

	got := r.Unregistered()
	if len(got) != 2 || got[0].Index != 0 || got[1].Index != 2 {
		t.Fatalf("Unregistered() = %+v", got)
	}
	if !r.IsProbed(1) || r.IsProbed(7) {
		t.Fatal("IsProbed mismatch")
	}
}

func TestDuplicatesAreKept(t *testing.T) {
	r := NewRegistry()
	r.Add(intcRegister("gic", "arm,gic-400"))
	r.Add(intcRegister("gic", "arm,gic-400"))
	if r.Len() != 2 || len(r.Unregistered()) != 2 {
		t.Fatal("duplicate register was deduplicated")
	}
}

func TestProbeKindMatch(t *testing.T) {
	p := ProbeKind{
		Compatibles: []string{"vendor,chip-a", "vendor,chip-b"},
		OnProbe:     OnProbeIntc(func(Node) (Intc, error) { return nil, nil }),
	}
	cases := []struct {
		compat []string
		want   string
		ok     bool
	}{
		{[]string{"vendor,chip-a"}, "vendor,chip-a", true},
		{[]string{"board,x", "vendor,chip-b"}, "vendor,chip-b", true},
		{[]string{"vendor,chip-b", "vendor,chip-a"}, "vendor,chip-a", true},
		{[]string{"vendor,chip-c"}, "", false},
		{nil, "", false},
	}
	for _, c := range cases {
		got, ok := p.Match(fakeNode{compat: c.compat})
		if ok != c.ok || got != c.want {
			t.Fatalf("Match(%v) = %q,%v want %q,%v", c.compat, got, ok, c.want, c.ok)
		}
	}
}

func TestHasKind(t *testing.T) {
	r := Register{Name: "multi", Probes: []ProbeKind{
		{OnProbe: OnProbeTimer(func(Node, types.IRQInfo) (Timer, error) { return nil, nil })},
		{OnProbe: OnProbeSerial(func(Node, types.IRQInfo) (Serial, error) { return nil, nil })},
	}}
	if !r.HasKind(types.KindTimer) || !r.HasKind(types.KindSerial) {
		t.Fatal("kinds missing")
	}
	if r.HasKind(types.KindIntc) {
		t.Fatal("unexpected intc kind")
	}
}

func TestLinkPanicsOnEmptyName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Link(Register{})
}

func TestLinkedIsACopy(t *testing.T) {
	Link(intcRegister("test_linked", "x,y"))
	l := Linked()
	if len(l) == 0 {
		t.Fatal("linked table empty")
	}
	l[0].Name = "mutated"
	if Linked()[0].Name == "mutated" {
		t.Fatal("Linked() exposed the table")
	}
}
