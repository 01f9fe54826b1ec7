// Package armtimer drives the ARM architected (generic) timer through its
// virtual timer view.
package armtimer

import (
	"encoding/binary"
	"math"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/types"
)

// Interrupt order in the node: secure phys, non-secure phys, virt, hyp.
const (
	irqSecurePhys = iota
	irqPhys
	irqVirt
	irqHyp
)

var Compatibles = []string{"arm,armv8-timer", "arm,armv7-timer"}

// Device is one CPU's generic timer.
type Device struct {
	c    Counter
	hz   uint64
	irq  types.IRQConfig
	ctl  uint32
	open bool
}

// New builds a timer over c. hz overrides the counter frequency when
// non-zero (the node's `clock-frequency`, for firmware that leaves CNTFRQ
// unset).
func New(c Counter, hz uint64, irq types.IRQConfig) *Device {
	if hz == 0 {
		hz = c.Freq()
	}
	return &Device{c: c, hz: hz, irq: irq}
}

// Open enables the timer with its interrupt masked.
func (d *Device) Open() error {
	if d.hz == 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "armtimer open", Msg: "counter frequency unknown"}
	}
	d.ctl = CtlEnable | CtlIMask
	d.c.SetCtl(d.ctl)
	d.open = true
	return nil
}

func (d *Device) Close() error {
	d.ctl = 0
	d.c.SetCtl(0)
	d.open = false
	return nil
}

func (d *Device) TickHz() uint64 { return d.hz }
func (d *Device) Ticks() uint64  { return d.c.Count() }

// SetTimeval arms the timer. Values beyond TVAL's 32 bits saturate.
func (d *Device) SetTimeval(ticks uint64) {
	d.c.SetTval(uint32(min(ticks, math.MaxUint32)))
}

func (d *Device) SetIRQEnabled(on bool) {
	if on {
		d.ctl &^= CtlIMask
	} else {
		d.ctl |= CtlIMask
	}
	d.c.SetCtl(d.ctl)
}

func (d *Device) IRQ() types.IRQConfig { return d.irq }

// pickIRQ prefers the non-secure physical timer interrupt and falls back to
// the first listed.
func pickIRQ(info types.IRQInfo) (types.IRQConfig, error) {
	switch {
	case len(info.Configs) > irqPhys:
		return info.Configs[irqPhys], nil
	case len(info.Configs) > 0:
		return info.Configs[irqSecurePhys], nil
	}
	return types.IRQConfig{}, errcode.FdtErr("armtimer", "no timer interrupt")
}

func init() { driver.Link(Register(installed{})) }

// Register builds the registry entry over counter c.
func Register(c Counter) driver.Register {
	return driver.Register{
		Name: "armtimer",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeTimer(func(n driver.Node, info types.IRQInfo) (driver.Timer, error) {
				irq, err := pickIRQ(info)
				if err != nil {
					return nil, err
				}
				var hz uint64
				if v, ok := n.Property("clock-frequency"); ok && len(v) == 4 {
					hz = uint64(binary.BigEndian.Uint32(v))
				}
				d := New(c, hz, irq)
				if err := d.Open(); err != nil {
					return nil, err
				}
				return d, nil
			}),
		}},
	}
}
