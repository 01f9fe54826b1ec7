package mmio

import (
	"sync"

	"rdrive-go/driver"
)

// Sim is a register window backed by a map, for hosts and tests. Unwritten
// registers read as zero unless a ReadHook answers.
type Sim struct {
	mu     sync.Mutex
	regs   map[uintptr]uint32
	writes []Write

	// ReadHook, if set, may override a read.
	ReadHook func(off uintptr) (uint32, bool)
	// WriteHook, if set, observes every write after it is stored.
	WriteHook func(off uintptr, v uint32)
}

// Write is one recorded register write.
type Write struct {
	Off uintptr
	V   uint32
}

func NewSim() *Sim { return &Sim{regs: map[uintptr]uint32{}} }

func (s *Sim) Read32(off uintptr) uint32 {
	s.mu.Lock()
	hook := s.ReadHook
	v := s.regs[off]
	s.mu.Unlock()
	if hook != nil {
		if hv, ok := hook(off); ok {
			return hv
		}
	}
	return v
}

func (s *Sim) Write32(off uintptr, v uint32) {
	s.mu.Lock()
	s.regs[off] = v
	s.writes = append(s.writes, Write{Off: off, V: v})
	hook := s.WriteHook
	s.mu.Unlock()
	if hook != nil {
		hook(off, v)
	}
}

// Set presets a register without recording a write.
func (s *Sim) Set(off uintptr, v uint32) {
	s.mu.Lock()
	s.regs[off] = v
	s.mu.Unlock()
}

// Writes returns the recorded writes in order.
func (s *Sim) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// SimSpace hands out one Sim per region base address.
type SimSpace struct {
	mu      sync.Mutex
	windows map[uint64]*Sim
}

func NewSimSpace() *SimSpace { return &SimSpace{windows: map[uint64]*Sim{}} }

func (s *SimSpace) Map(r driver.Region) (Regs, error) {
	return s.Window(r.Addr), nil
}

// Window returns (creating on first use) the Sim at addr.
func (s *SimSpace) Window(addr uint64) *Sim {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[addr]
	if !ok {
		w = NewSim()
		s.windows[addr] = w
	}
	return w
}
