package driver

// Indexed pairs a register with its position in the registry.
type Indexed struct {
	Index    int
	Register Register
}

// Registry is the append-only list of registers plus the set of indices that
// probed successfully at least once. It is not safe for concurrent use; the
// owner serialises access.
type Registry struct {
	registers []Register
	probed    map[int]struct{}
}

func NewRegistry() *Registry {
	return &Registry{probed: map[int]struct{}{}}
}

// Add appends r. Duplicates by name or compatible are kept; each entry is
// separately eligible to match.
func (r *Registry) Add(reg Register) {
	r.registers = append(r.registers, reg)
}

// Append adds regs in order.
func (r *Registry) Append(regs []Register) {
	r.registers = append(r.registers, regs...)
}

// Unregistered returns every entry not yet probed, in insertion order.
// It is a plain linear scan: registries are small and probing is rare.
func (r *Registry) Unregistered() []Indexed {
	out := make([]Indexed, 0, len(r.registers)-len(r.probed))
	for i, reg := range r.registers {
		if _, done := r.probed[i]; done {
			continue
		}
		out = append(out, Indexed{Index: i, Register: reg})
	}
	return out
}

// SetProbed marks index i as probed. Out of range indices are ignored.
func (r *Registry) SetProbed(i int) {
	if i < 0 || i >= len(r.registers) {
		return
	}
	r.probed[i] = struct{}{}
}

func (r *Registry) IsProbed(i int) bool {
	_, ok := r.probed[i]
	return ok
}

func (r *Registry) Len() int { return len(r.registers) }
