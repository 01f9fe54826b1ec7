// Package gicv2 drives the ARM Generic Interrupt Controller v2: the
// distributor (first `reg` entry) and the CPU interface (second).
package gicv2

import (
	"errors"
	"fmt"

	"rdrive-go/errcode"
	"rdrive-go/mmio"
	"rdrive-go/types"
)

// Distributor registers.
const (
	gicdCTLR       = 0x000
	gicdTYPER      = 0x004
	gicdISENABLER  = 0x100
	gicdICENABLER  = 0x180
	gicdIPRIORITYR = 0x400
	gicdITARGETSR  = 0x800
	gicdICFGR      = 0xC00
)

// CPU interface registers.
const (
	giccCTLR = 0x000
	giccPMR  = 0x004
	giccIAR  = 0x00C
	giccEOIR = 0x010
)

const (
	spiBase  = 32
	ppiBase  = 16
	spurious = 1023
	maxIRQs  = 1020
)

// Device is one GICv2 instance.
type Device struct {
	dist mmio.Regs
	cpu  mmio.Regs
	max  types.IRQ
}

// New wraps already mapped distributor and CPU interface windows.
func New(dist, cpu mmio.Regs) *Device {
	return &Device{dist: dist, cpu: cpu}
}

// Open enables forwarding on both halves and unmasks every priority.
func (d *Device) Open() error {
	lines := (d.dist.Read32(gicdTYPER)&0x1f + 1) * 32
	d.max = types.IRQ(min(lines, maxIRQs))
	d.dist.Write32(gicdCTLR, 1)
	d.cpu.Write32(giccPMR, 0xff)
	d.cpu.Write32(giccCTLR, 1)
	return nil
}

func (d *Device) Close() error {
	d.cpu.Write32(giccCTLR, 0)
	d.dist.Write32(gicdCTLR, 0)
	return nil
}

// Lines returns the number of interrupt IDs the distributor implements.
func (d *Device) Lines() types.IRQ { return d.max }

func (d *Device) check(op string, irq types.IRQ) error {
	if irq >= d.max {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: fmt.Sprintf("irq %d out of range", irq)}
	}
	return nil
}

func bank(base uintptr, irq types.IRQ) (uintptr, uint32) {
	return base + uintptr(irq/32)*4, 1 << (irq % 32)
}

func (d *Device) IRQEnable(irq types.IRQ) error {
	if err := d.check("gicv2 enable", irq); err != nil {
		return err
	}
	off, bit := bank(gicdISENABLER, irq)
	d.dist.Write32(off, bit)
	if irq >= spiBase {
		d.setTarget(irq, 0x01)
	}
	return nil
}

func (d *Device) IRQDisable(irq types.IRQ) error {
	if err := d.check("gicv2 disable", irq); err != nil {
		return err
	}
	off, bit := bank(gicdICENABLER, irq)
	d.dist.Write32(off, bit)
	return nil
}

// setTarget routes an SPI to the CPUs in mask.
func (d *Device) setTarget(irq types.IRQ, mask uint8) {
	d.rmwByte(gicdITARGETSR, irq, mask)
}

func (d *Device) rmwByte(base uintptr, irq types.IRQ, v uint8) {
	off := base + uintptr(irq&^3)
	shift := (irq % 4) * 8
	w := d.dist.Read32(off)
	w = w&^(0xff<<shift) | uint32(v)<<shift
	d.dist.Write32(off, w)
}

// SetTrigger programs edge or level sensitivity. The GIC only knows rising
// edges and active-high levels; SGIs are fixed.
func (d *Device) SetTrigger(irq types.IRQ, t types.Trigger) error {
	if err := d.check("gicv2 trigger", irq); err != nil {
		return err
	}
	if irq < ppiBase {
		return &errcode.E{C: errcode.Unsupported, Op: "gicv2 trigger", Msg: "sgi trigger is fixed"}
	}
	var edge uint32
	switch t {
	case types.TriggerEdgeRising:
		edge = 1
	case types.TriggerLevelHigh, types.TriggerNone:
	default:
		return &errcode.E{C: errcode.Unsupported, Op: "gicv2 trigger", Msg: t.String()}
	}
	off := gicdICFGR + uintptr(irq/16)*4
	shift := (irq%16)*2 + 1
	w := d.dist.Read32(off)
	w = w&^(1<<shift) | edge<<shift
	d.dist.Write32(off, w)
	return nil
}

func (d *Device) SetPriority(irq types.IRQ, prio uint8) error {
	if err := d.check("gicv2 priority", irq); err != nil {
		return err
	}
	d.rmwByte(gicdIPRIORITYR, irq, prio)
	return nil
}

// Ack reads IAR. The second result is false for the spurious ID.
func (d *Device) Ack() (types.IRQ, bool) {
	id := types.IRQ(d.cpu.Read32(giccIAR) & 0x3ff)
	return id, id != spurious
}

func (d *Device) EOI(irq types.IRQ) {
	d.cpu.Write32(giccEOIR, uint32(irq))
}

var errCells = errors.New("gicv2: want 3 interrupt cells")

// ParseCells decodes a 3-cell specifier: type (0 SPI, 1 PPI), number, flags.
func ParseCells(cells []uint32) (types.IRQConfig, error) {
	if len(cells) != 3 {
		return types.IRQConfig{}, errCells
	}
	var irq types.IRQ
	switch cells[0] {
	case 0:
		if cells[1] >= maxIRQs-spiBase {
			return types.IRQConfig{}, fmt.Errorf("gicv2: spi %d out of range", cells[1])
		}
		irq = types.IRQ(cells[1]) + spiBase
	case 1:
		if cells[1] > 15 {
			return types.IRQConfig{}, fmt.Errorf("gicv2: ppi %d out of range", cells[1])
		}
		irq = types.IRQ(cells[1]) + ppiBase
	default:
		return types.IRQConfig{}, fmt.Errorf("gicv2: unknown interrupt type %d", cells[0])
	}
	if irq >= maxIRQs {
		return types.IRQConfig{}, fmt.Errorf("gicv2: irq %d out of range", irq)
	}
	return types.IRQConfig{IRQ: irq, Trigger: trigger(cells[2])}, nil
}

func trigger(flags uint32) types.Trigger {
	switch flags & 0xf {
	case 1:
		return types.TriggerEdgeRising
	case 2:
		return types.TriggerEdgeFalling
	case 3:
		return types.TriggerEdgeBoth
	case 4:
		return types.TriggerLevelHigh
	case 8:
		return types.TriggerLevelLow
	}
	return types.TriggerNone
}
