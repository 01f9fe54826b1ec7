// Package dwi2c drives the Synopsys DesignWare APB I2C controller as a
// polled bus master.
package dwi2c

import (
	"encoding/binary"
	"fmt"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/mmio"
	"rdrive-go/types"
)

const (
	regCON          = 0x00
	regTAR          = 0x04
	regDataCmd      = 0x10
	regSSHCNT       = 0x14
	regSSLCNT       = 0x18
	regRawIntrStat  = 0x34
	regClrTxAbrt    = 0x54
	regEnable       = 0x6c
	regStatus       = 0x70
	regRXFLR        = 0x78
	regTxAbrtSource = 0x80
	regEnableStatus = 0x9c
)

const (
	conMaster       = 1 << 0
	conSpeedStd     = 1 << 1
	conRestartEn    = 1 << 5
	conSlaveDisable = 1 << 6

	cmdRead    = 1 << 8
	cmdStop    = 1 << 9
	cmdRestart = 1 << 10

	statusTFNF     = 1 << 1
	statusActivity = 1 << 0
	rawTxAbrt      = 1 << 6
)

// DefaultClock is assumed when the node has no `clock-frequency`.
const DefaultClock = 100_000_000

const pollLimit = 100_000

var Compatibles = []string{"snps,designware-i2c"}

// Device is one controller.
type Device struct {
	regs  mmio.Regs
	clock uint32
	irq   types.IRQInfo
	tar   uint16
	open  bool
}

func New(regs mmio.Regs, clock uint32, irq types.IRQInfo) *Device {
	if clock == 0 {
		clock = DefaultClock
	}
	return &Device{regs: regs, clock: clock, irq: irq, tar: 0xffff}
}

// Open configures standard mode (100 kHz) master operation.
func (d *Device) Open() error {
	if err := d.enable(false); err != nil {
		return err
	}
	d.regs.Write32(regCON, conMaster|conSpeedStd|conRestartEn|conSlaveDisable)
	// 4.0 us high, 4.7 us low at 100 kHz.
	d.regs.Write32(regSSHCNT, d.clock/1_000_000*40/10)
	d.regs.Write32(regSSLCNT, d.clock/1_000_000*47/10)
	d.open = true
	return nil
}

func (d *Device) Close() error {
	d.open = false
	return d.enable(false)
}

func (d *Device) IRQ() types.IRQInfo { return d.irq }

func (d *Device) enable(on bool) error {
	var v uint32
	if on {
		v = 1
	}
	d.regs.Write32(regEnable, v)
	for range pollLimit {
		if d.regs.Read32(regEnableStatus)&1 == v {
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "dwi2c enable"}
}

// setTarget reprograms TAR, which requires the controller disabled.
func (d *Device) setTarget(addr uint16) error {
	if d.tar == addr {
		return nil
	}
	if err := d.enable(false); err != nil {
		return err
	}
	d.regs.Write32(regTAR, uint32(addr))
	d.tar = addr
	return nil
}

// Tx writes w, then reads len(r) bytes after a repeated start, ending with
// a stop. It satisfies tinygo.org/x/drivers.I2C.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	if !d.open {
		return &errcode.E{C: errcode.Error, Op: "dwi2c tx", Msg: "controller closed"}
	}
	if addr > 0x7f {
		return &errcode.E{C: errcode.InvalidParams, Op: "dwi2c tx", Msg: fmt.Sprintf("address %#x", addr)}
	}
	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	if err := d.setTarget(addr); err != nil {
		return err
	}
	if err := d.enable(true); err != nil {
		return err
	}
	for i, b := range w {
		cmd := uint32(b)
		if i == len(w)-1 && len(r) == 0 {
			cmd |= cmdStop
		}
		if err := d.push(cmd); err != nil {
			return err
		}
	}
	for i := range r {
		cmd := uint32(cmdRead)
		if i == 0 && len(w) > 0 {
			cmd |= cmdRestart
		}
		if i == len(r)-1 {
			cmd |= cmdStop
		}
		if err := d.push(cmd); err != nil {
			return err
		}
		b, err := d.pop()
		if err != nil {
			return err
		}
		r[i] = b
	}
	return d.idle()
}

func (d *Device) abort() error {
	if d.regs.Read32(regRawIntrStat)&rawTxAbrt == 0 {
		return nil
	}
	src := d.regs.Read32(regTxAbrtSource)
	d.regs.Read32(regClrTxAbrt)
	return &errcode.E{C: errcode.Error, Op: "dwi2c tx", Msg: fmt.Sprintf("abort source %#x", src)}
}

func (d *Device) push(cmd uint32) error {
	for range pollLimit {
		if err := d.abort(); err != nil {
			return err
		}
		if d.regs.Read32(regStatus)&statusTFNF != 0 {
			d.regs.Write32(regDataCmd, cmd)
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "dwi2c tx", Msg: "tx fifo full"}
}

func (d *Device) pop() (byte, error) {
	for range pollLimit {
		if err := d.abort(); err != nil {
			return 0, err
		}
		if d.regs.Read32(regRXFLR) > 0 {
			return byte(d.regs.Read32(regDataCmd)), nil
		}
	}
	return 0, &errcode.E{C: errcode.Timeout, Op: "dwi2c tx", Msg: "no rx data"}
}

func (d *Device) idle() error {
	for range pollLimit {
		if err := d.abort(); err != nil {
			return err
		}
		if d.regs.Read32(regStatus)&statusActivity == 0 {
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "dwi2c tx", Msg: "bus stuck active"}
}

func init() { driver.Link(Register(mmio.Installed)) }

// Register builds the registry entry, mapping windows through m.
func Register(m mmio.Mapper) driver.Register {
	return driver.Register{
		Name: "dwi2c",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeI2C(func(n driver.Node, irq types.IRQInfo) (driver.I2C, error) {
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
