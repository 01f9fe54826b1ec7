// Package mmio gives drivers a register window over an already mapped
// device region.
package mmio

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"rdrive-go/driver"
	"rdrive-go/errcode"
)

// Regs is a 32-bit register window. Offsets are bytes from the window base.
type Regs interface {
	Read32(off uintptr) uint32
	Write32(off uintptr, v uint32)
}

// Mem accesses real memory at a virtual base address. The memory subsystem
// must have mapped the region as device memory before probing.
type Mem struct {
	base unsafe.Pointer
}

func NewMem(base uintptr) Mem { return Mem{base: unsafe.Pointer(base)} }

// MemAt is Mem over memory the process already holds, such as an mmap'ed
// window or a test buffer.
func MemAt(p unsafe.Pointer) Mem { return Mem{base: p} }

func (m Mem) Read32(off uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Add(m.base, off)))
}

func (m Mem) Write32(off uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Add(m.base, off)), v)
}

// Mapper turns a `reg` region into a register window.
type Mapper interface {
	Map(r driver.Region) (Regs, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(r driver.Region) (Regs, error)

func (f MapperFunc) Map(r driver.Region) (Regs, error) { return f(r) }

// Identity maps every region at its physical address, which holds while the
// kernel runs identity mapped.
var Identity = MapperFunc(func(r driver.Region) (Regs, error) {
	if r.Addr == 0 {
		return nil, errcode.FdtErr("mmio", "zero region address")
	}
	return NewMem(uintptr(r.Addr)), nil
})

var (
	mapperMu sync.RWMutex
	mapper   Mapper = Identity
)

// SetMapper installs the mapper linked drivers use. Boot code calls it once,
// after paging is up and before probing.
func SetMapper(m Mapper) {
	mapperMu.Lock()
	defer mapperMu.Unlock()
	mapper = m
}

// Installed is a Mapper that defers to whatever SetMapper installed at the
// time of the call.
var Installed = MapperFunc(func(r driver.Region) (Regs, error) {
	mapperMu.RLock()
	m := mapper
	mapperMu.RUnlock()
	return m.Map(r)
})

// MapNode maps the idx-th `reg` region of n.
func MapNode(m Mapper, n driver.Node, idx int) (Regs, error) {
	reg := n.Reg()
	if idx >= len(reg) {
		return nil, errcode.FdtErr("mmio", n.Path()+": missing reg entry")
	}
	return m.Map(reg[idx])
}
