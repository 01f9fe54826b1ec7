// Package pl011 drives the ARM PrimeCell PL011 UART in polled mode.
package pl011

import (
	"encoding/binary"
	"fmt"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/mmio"
	"rdrive-go/types"
)

const (
	regDR   = 0x00
	regFR   = 0x18
	regIBRD = 0x24
	regFBRD = 0x28
	regLCRH = 0x2c
	regCR   = 0x30
	regIMSC = 0x38
	regICR  = 0x44
)

const (
	frBusy = 1 << 3
	frRXFE = 1 << 4
	frTXFF = 1 << 5

	lcrhPEN  = 1 << 1
	lcrhEPS  = 1 << 2
	lcrhSTP2 = 1 << 3
	lcrhFEN  = 1 << 4

	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	crRXE    = 1 << 9

	dsErrMask = 0xf00
)

// DefaultClock is used when the node has no `clock-frequency`.
const DefaultClock = 24_000_000

// pollLimit bounds every busy wait on the flag register.
const pollLimit = 100_000

// "arm,primecell" alone is shared by every PrimeCell (RTC, GPIO) and is not
// matched.
var Compatibles = []string{"arm,pl011"}

// Device is one PL011.
type Device struct {
	regs  mmio.Regs
	clock uint32
	fmt   types.SerialFormat
	irq   types.IRQInfo
}

func New(regs mmio.Regs, clock uint32, irq types.IRQInfo) *Device {
	if clock == 0 {
		clock = DefaultClock
	}
	return &Device{regs: regs, clock: clock, fmt: types.DefaultSerialFormat, irq: irq}
}

// Open programs the default format and enables TX and RX with every
// interrupt masked.
func (d *Device) Open() error {
	d.regs.Write32(regIMSC, 0)
	d.regs.Write32(regICR, 0x7ff)
	return d.SetFormat(d.fmt)
}

func (d *Device) Close() error {
	if err := d.drain(); err != nil {
		return err
	}
	d.regs.Write32(regCR, 0)
	return nil
}

// IRQ returns the decoded interrupt wiring, empty for polled-only ports.
func (d *Device) IRQ() types.IRQInfo { return d.irq }

// Format returns the active line format.
func (d *Device) Format() types.SerialFormat { return d.fmt }

func (d *Device) drain() error {
	for range pollLimit {
		if d.regs.Read32(regFR)&frBusy == 0 {
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "pl011 drain"}
}

// SetFormat reprograms baud rate and framing. A zero Baud keeps the current
// divisors. The UART is disabled while
// the line control register changes, as the TRM requires.
func (d *Device) SetFormat(f types.SerialFormat) error {
	lcrh, err := lineControl(f)
	if err != nil {
		return err
	}
	var ibrd, fbrd uint32
	if f.Baud != 0 {
		if ibrd, fbrd, err = divisors(d.clock, f.Baud); err != nil {
			return err
		}
	}
	if err := d.drain(); err != nil {
		return err
	}
	d.regs.Write32(regCR, 0)
	if f.Baud != 0 {
		d.regs.Write32(regIBRD, ibrd)
		d.regs.Write32(regFBRD, fbrd)
	} else {
		f.Baud = d.fmt.Baud
	}
	d.regs.Write32(regLCRH, lcrh)
	d.regs.Write32(regCR, crUARTEN|crTXE|crRXE)
	d.fmt = f
	return nil
}

// divisors splits clock/(16*baud) into its 16-bit integer and 6-bit
// fractional parts, rounded.
func divisors(clock, baud uint32) (ibrd, fbrd uint32, err error) {
	div := (uint64(clock)*8/uint64(baud) + 1) / 2 // 64 * clock / (16 * baud), rounded
	ibrd, fbrd = uint32(div>>6), uint32(div&0x3f)
	if ibrd == 0 || ibrd > 0xffff {
		return 0, 0, &errcode.E{C: errcode.InvalidParams, Op: "pl011 format", Msg: fmt.Sprintf("baud %d unreachable from %d Hz", baud, clock)}
	}
	return ibrd, fbrd, nil
}

func lineControl(f types.SerialFormat) (uint32, error) {
	if f.DataBits < 5 || f.DataBits > 8 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "pl011 format", Msg: fmt.Sprintf("%d data bits", f.DataBits)}
	}
	v := uint32(f.DataBits-5)<<5 | lcrhFEN
	switch f.StopBits {
	case 1:
	case 2:
		v |= lcrhSTP2
	default:
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "pl011 format", Msg: fmt.Sprintf("%d stop bits", f.StopBits)}
	}
	switch f.Parity {
	case types.ParityNone:
	case types.ParityEven:
		v |= lcrhPEN | lcrhEPS
	case types.ParityOdd:
		v |= lcrhPEN
	default:
		return 0, &errcode.E{C: errcode.Unsupported, Op: "pl011 format", Msg: "parity " + f.Parity.String()}
	}
	return v, nil
}

// WriteByte waits, bounded, for FIFO space.
func (d *Device) WriteByte(b byte) error {
	for range pollLimit {
		if d.regs.Read32(regFR)&frTXFF == 0 {
			d.regs.Write32(regDR, uint32(b))
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "pl011 write"}
}

// ReadByte returns errcode.Busy when the receive FIFO is empty.
func (d *Device) ReadByte() (byte, error) {
	if d.regs.Read32(regFR)&frRXFE != 0 {
		return 0, errcode.Busy
	}
	v := d.regs.Read32(regDR)
	if v&dsErrMask != 0 {
		return byte(v), &errcode.E{C: errcode.Error, Op: "pl011 read", Msg: fmt.Sprintf("receive status %#x", v>>8&0xf)}
	}
	return byte(v), nil
}

// Write sends p byte by byte.
func (d *Device) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := d.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func init() { driver.Link(Register(mmio.Installed)) }

// Register builds the registry entry, mapping windows through m.
func Register(m mmio.Mapper) driver.Register {
	return driver.Register{
		Name: "pl011",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeSerial(func(n driver.Node, irq types.IRQInfo) (driver.Serial, error) {
				regs, err := mmio.MapNode(m, n, 0)
				if err != nil {
					return nil, err
				}
				var clock uint32
				if v, ok := n.Property("clock-frequency"); ok && len(v) == 4 {
					clock = binary.BigEndian.Uint32(v)
				}
				d := New(regs, clock, irq)
				if err := d.Open(); err != nil {
					return nil, err
				}
				return d, nil
			}),
		}},
	}
}
