// Package aht20 drives the Aosong AHT20 temperature/humidity sensor.
//
// Measurements are two-phase: Trigger starts a conversion, Collect fetches it
// and reports errcode.Busy while the part is still converting. Read does both
// with bounded polling. Tx must do a write followed by a repeated-start read
// when both buffers are given.
//
// Conversions stay in fixed point: deci-°C and hundredths of %RH.
package aht20

import (
	"time"

	"rdrive-go/errcode"
	"rdrive-go/types"
	"rdrive-go/x/mathx"

	"tinygo.org/x/drivers"
)

// Address is the default bus address.
const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

// Timing controls polling in Read. Zero fields take defaults.
type Timing struct {
	Poll    time.Duration // between Collect attempts, default 15 ms
	Timeout time.Duration // whole Read, default 250 ms
	Settle  time.Duration // after initialisation, default 10 ms
}

func (t Timing) withDefaults() Timing {
	if t.Poll <= 0 {
		t.Poll = 15 * time.Millisecond
	}
	if t.Timeout <= 0 {
		t.Timeout = 250 * time.Millisecond
	}
	if t.Settle <= 0 {
		t.Settle = 10 * time.Millisecond
	}
	return t
}

// Sample holds one raw conversion.
type Sample struct {
	RawHumidity uint32 // 20 bits
	RawTemp     uint32 // 20 bits
}

// DeciCelsius converts RawTemp: T = raw/2^20 * 200 - 50.
func (s Sample) DeciCelsius() int32 {
	return int32(s.RawTemp)*2000/0x100000 - 500
}

// RHx100 converts RawHumidity: RH = raw/2^20 * 100.
func (s Sample) RHx100() uint32 {
	return uint32(uint64(s.RawHumidity) * 10000 / 0x100000)
}

// Device is one sensor on a bus.
type Device struct {
	bus    drivers.I2C
	addr   uint16
	timing Timing
	info   types.SensorInfo
	buf    [7]byte
	ready  bool
	now    func() time.Time
	sleep  func(time.Duration)
}

// New does not touch the bus; the part is initialised on first use.
func New(bus drivers.I2C, addr uint16, busPath string, t Timing) *Device {
	if addr == 0 {
		addr = Address
	}
	return &Device{
		bus:    bus,
		addr:   addr,
		timing: t.withDefaults(),
		info:   types.SensorInfo{Sensor: "aht20", Addr: addr, Bus: busPath},
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

func (d *Device) Open() error  { return nil }
func (d *Device) Close() error { return nil }

func (d *Device) Info() types.SensorInfo { return d.info }

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	b := d.buf[:1]
	if err := d.bus.Tx(d.addr, []byte{cmdStatus}, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Reset issues a soft reset. The part needs about 20 ms before the next
// command.
func (d *Device) Reset() error {
	d.ready = false
	return d.bus.Tx(d.addr, []byte{cmdSoftReset}, nil)
}

// init loads the calibration unless the status already reports it.
func (d *Device) init() error {
	if d.ready {
		return nil
	}
	if st, err := d.Status(); err == nil && st&statusCalibrated != 0 {
		d.ready = true
		return nil
	}
	if err := d.bus.Tx(d.addr, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	d.sleep(d.timing.Settle)
	d.ready = true
	return nil
}

// Trigger starts a conversion without waiting for it.
func (d *Device) Trigger() error {
	if err := d.init(); err != nil {
		return err
	}
	return d.bus.Tx(d.addr, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads a finished conversion. It returns errcode.Busy while the
// part is converting.
func (d *Device) Collect() (Sample, error) {
	data := d.buf[:]
	if err := d.bus.Tx(d.addr, nil, data); err != nil {
		return Sample{}, err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return Sample{}, errcode.Busy
	}
	return Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}, nil
}

// Read triggers and polls until a sample arrives or Timing.Timeout passes.
func (d *Device) Read() (types.Measurement, error) {
	if err := d.Trigger(); err != nil {
		return types.Measurement{}, &errcode.E{C: errcode.Error, Op: "aht20 trigger", Err: err}
	}
	deadline := d.now().Add(d.timing.Timeout)
	for {
		s, err := d.Collect()
		switch {
		case err == nil:
			return types.Measurement{
				DeciC:  int16(mathx.Clamp(s.DeciCelsius(), -32768, 32767)),
				RHx100: uint16(mathx.Clamp(s.RHx100(), 0, 10000)),
				TSms:   d.now().UnixMilli(),
			}, nil
		case errcode.Of(err) != errcode.Busy:
			return types.Measurement{}, &errcode.E{C: errcode.Error, Op: "aht20 collect", Err: err}
		case d.now().After(deadline):
			return types.Measurement{}, &errcode.E{C: errcode.Timeout, Op: "aht20 read"}
		}
		d.sleep(d.timing.Poll)
	}
}
