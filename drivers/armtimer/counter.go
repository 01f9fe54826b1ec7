package armtimer

import (
	"sync"
	"time"
)

// Counter is the per-CPU generic timer as seen through its system
// registers (CNTFRQ, CNTVCT, CNTV_TVAL, CNTV_CTL).
type Counter interface {
	Freq() uint64
	Count() uint64
	SetTval(ticks uint32)
	SetCtl(ctl uint32)
}

// Control register bits.
const (
	CtlEnable  = 1 << 0
	CtlIMask   = 1 << 1
	CtlIStatus = 1 << 2
)

// SoftCounter derives the count from the monotonic clock. It stands in for
// the system registers on hosts.
type SoftCounter struct {
	mu    sync.Mutex
	hz    uint64
	start time.Time
	tval  uint32
	ctl   uint32
}

func NewSoftCounter(hz uint64) *SoftCounter {
	return &SoftCounter{hz: hz, start: time.Now()}
}

func (c *SoftCounter) Freq() uint64 { return c.hz }

func (c *SoftCounter) Count() uint64 {
	el := time.Since(c.start)
	return uint64(el/time.Second)*c.hz + uint64(el%time.Second)*c.hz/uint64(time.Second)
}

func (c *SoftCounter) SetTval(ticks uint32) {
	c.mu.Lock()
	c.tval = ticks
	c.mu.Unlock()
}

func (c *SoftCounter) SetCtl(ctl uint32) {
	c.mu.Lock()
	c.ctl = ctl
	c.mu.Unlock()
}

// State returns the last programmed TVAL and CTL.
func (c *SoftCounter) State() (tval, ctl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tval, c.ctl
}

var (
	counterMu sync.RWMutex
	counter   Counter = NewSoftCounter(62_500_000)
)

// SetCounter installs the counter linked timers use. Boot code on real
// hardware installs its system register accessor before probing.
func SetCounter(c Counter) {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter = c
}

// installed defers to whatever SetCounter installed at call time.
type installed struct{}

func (installed) get() Counter {
	counterMu.RLock()
	defer counterMu.RUnlock()
	return counter
}

func (i installed) Freq() uint64         { return i.get().Freq() }
func (i installed) Count() uint64        { return i.get().Count() }
func (i installed) SetTval(ticks uint32) { i.get().SetTval(ticks) }
func (i installed) SetCtl(ctl uint32)    { i.get().SetCtl(ctl) }
