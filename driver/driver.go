// Package driver holds the contracts between probed drivers and the probing
// engine: the tree view, the driver interfaces per kind, the register
// records drivers link in, and the registry of those records.
package driver

import (
	"rdrive-go/types"

	"tinygo.org/x/drivers"
)

// Interface is implemented by every driver.
type Interface interface {
	Open() error
	Close() error
}

// CellParser decodes one interrupt specifier. Interrupt cell encoding is
// chip specific, so the controller driver supplies it.
type CellParser func(cells []uint32) (types.IRQConfig, error)

// Intc is an interrupt controller.
type Intc interface {
	Interface
	// CellParser returns nil if the controller cannot decode specifiers.
	CellParser() CellParser
	IRQEnable(irq types.IRQ) error
	IRQDisable(irq types.IRQ) error
	SetTrigger(irq types.IRQ, t types.Trigger) error
	SetPriority(irq types.IRQ, prio uint8) error
	// Ack acknowledges the highest priority pending interrupt.
	Ack() (types.IRQ, bool)
	EOI(irq types.IRQ)
}

// Timer is a per-CPU or system event timer.
type Timer interface {
	Interface
	TickHz() uint64
	Ticks() uint64
	// SetTimeval arms the timer to fire after ticks.
	SetTimeval(ticks uint64)
	SetIRQEnabled(on bool)
	IRQ() types.IRQConfig
}

// Serial is a byte oriented UART.
type Serial interface {
	Interface
	SetFormat(f types.SerialFormat) error
	WriteByte(b byte) error
	// ReadByte returns errcode.Busy when no byte is pending.
	ReadByte() (byte, error)
}

// I2C is an I²C bus controller. Tx follows tinygo.org/x/drivers.I2C: a write
// followed by a repeated-start read when both w and r are provided.
type I2C interface {
	Interface
	drivers.I2C
}

// Sensor is a device hanging off an I2C controller.
type Sensor interface {
	Interface
	Info() types.SensorInfo
	Read() (types.Measurement, error)
}
