// Package shtc3dev exposes the Sensirion SHTC3 as a probed sensor, on top of
// the tinygo driver.
package shtc3dev

import (
	"errors"
	"fmt"
	"time"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/types"
	"rdrive-go/x/mathx"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"
)

// Address is fixed by the part.
const Address = 0x70

var Compatibles = []string{"sensirion,shtc3"}

// txErr keeps the first Tx failure, since the tinygo driver drops them.
type txErr struct {
	bus drivers.I2C
	err error
}

func (b *txErr) Tx(addr uint16, w, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

// take returns and clears the recorded failure.
func (b *txErr) take() error {
	err := b.err
	b.err = nil
	return err
}

// Device wraps the tinygo driver. Construction does not touch the bus.
type Device struct {
	drv  shtc3.Device
	bus  *txErr
	info types.SensorInfo
	now  func() time.Time
}

func New(bus drivers.I2C, busPath string) *Device {
	b := &txErr{bus: bus}
	return &Device{
		drv:  shtc3.New(b),
		bus:  b,
		info: types.SensorInfo{Sensor: "shtc3", Addr: Address, Bus: busPath},
		now:  time.Now,
	}
}

func (d *Device) Open() error { return nil }
func (d *Device) Close() error {
	d.bus.take()
	_ = d.drv.Sleep()
	if err := d.bus.take(); err != nil {
		return &errcode.E{C: errcode.Of(err), Op: "shtc3 sleep", Err: err}
	}
	return nil
}

func (d *Device) Info() types.SensorInfo { return d.info }

// Read wakes the part, measures and puts it back to sleep.
func (d *Device) Read() (types.Measurement, error) {
	d.bus.take()
	if err := errors.Join(d.drv.WakeUp(), d.bus.take()); err != nil {
		return types.Measurement{}, &errcode.E{C: errcode.Of(err), Op: "shtc3 wake", Err: err}
	}
	defer func() {
		_ = d.drv.Sleep()
		d.bus.take()
	}()

	tmc, rhx100, err := d.drv.ReadTemperatureHumidity()
	if err = errors.Join(err, d.bus.take()); err != nil {
		return types.Measurement{}, &errcode.E{C: errcode.Of(err), Op: "shtc3 read", Err: err}
	}
	// milli-°C to deci-°C.
	decic := mathx.Clamp(tmc/100, -32768, 32767)
	rhx100 = mathx.Clamp(rhx100, 0, 10000)
	return types.Measurement{
		DeciC:  int16(decic),
		RHx100: uint16(rhx100),
		TSms:   d.now().UnixMilli(),
	}, nil
}

func init() { driver.Link(Register()) }

// Register builds the registry entry.
func Register() driver.Register {
	return driver.Register{
		Name: "shtc3",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeSensor(func(n driver.Node, bus drivers.I2C) (driver.Sensor, error) {
				if addr, ok := driver.BusAddr(n); ok && addr != Address {
					return nil, &errcode.E{C: errcode.InvalidParams, Op: "shtc3 probe", Msg: fmt.Sprintf("%s: address %#x, part answers at %#x", n.Path(), addr, Address)}
				}
				return New(bus, driver.ParentPath(n)), nil
			}),
		}},
	}
}
