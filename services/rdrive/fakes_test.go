package rdrive

import (
	"errors"
	"sync"
	"testing"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/fdt"
	"rdrive-go/types"

	"tinygo.org/x/drivers"
)

const gicPhandle = 0x8001

// boardTree: a GIC, a timer and a UART wired to it, an I2C controller with
// one sensor, and a second UART without interrupts.
func boardTree() fdt.Spec {
	return fdt.Spec{
		Props: []fdt.Prop{
			fdt.U32("#address-cells", 2),
			fdt.U32("#size-cells", 2),
			fdt.U32("interrupt-parent", gicPhandle),
		},
		Children: []fdt.Spec{
			{Name: "intc@8000000", Props: []fdt.Prop{
				fdt.U32("phandle", gicPhandle),
				fdt.U32("#interrupt-cells", 3),
				fdt.Strs("compatible", "test,intc"),
			}},
			{Name: "timer", Props: []fdt.Prop{
				fdt.Strs("compatible", "test,timer"),
				fdt.U32("interrupts", 1, 13, 4, 1, 14, 4),
			}},
			{Name: "uart@9000000", Props: []fdt.Prop{
				fdt.Strs("compatible", "vendor,uart-x", "test,uart"),
				fdt.U32("interrupts", 0, 1, 4),
			}},
			{Name: "uart@9001000", Props: []fdt.Prop{
				fdt.Strs("compatible", "test,uart"),
			}},
			{Name: "i2c@9002000", Props: []fdt.Prop{
				fdt.Strs("compatible", "test,i2c"),
				fdt.U32("#address-cells", 1),
				fdt.U32("#size-cells", 0),
			}, Children: []fdt.Spec{
				{Name: "sensor@70", Props: []fdt.Prop{
					fdt.Strs("compatible", "test,sensor"),
					fdt.U32("reg", 0x70),
				}},
			}},
		},
	}
}

func mustTree(t *testing.T, s fdt.Spec) *fdt.Tree {
	t.Helper()
	blob, err := fdt.Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tree, err := fdt.Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

// addCells is the parser of the fake controller: irq = a + b, trigger from c.
func addCells(cells []uint32) (types.IRQConfig, error) {
	if len(cells) != 3 {
		return types.IRQConfig{}, errors.New("want 3 cells")
	}
	return types.IRQConfig{IRQ: types.IRQ(cells[0] + cells[1]), Trigger: types.TriggerLevelHigh}, nil
}

type base struct{ closed bool }

func (b *base) Open() error  { return nil }
func (b *base) Close() error { b.closed = true; return nil }

type fakeIntc struct {
	base
	parser driver.CellParser
}

func (f *fakeIntc) CellParser() driver.CellParser             { return f.parser }
func (f *fakeIntc) IRQEnable(types.IRQ) error                 { return nil }
func (f *fakeIntc) IRQDisable(types.IRQ) error                { return nil }
func (f *fakeIntc) SetTrigger(types.IRQ, types.Trigger) error { return nil }
func (f *fakeIntc) SetPriority(types.IRQ, uint8) error        { return nil }
func (f *fakeIntc) Ack() (types.IRQ, bool)                    { return 0, false }
func (f *fakeIntc) EOI(types.IRQ)                             {}

type fakeTimer struct {
	base
	irq types.IRQInfo
}

func (f *fakeTimer) TickHz() uint64       { return 1000 }
func (f *fakeTimer) Ticks() uint64        { return 0 }
func (f *fakeTimer) SetTimeval(uint64)    {}
func (f *fakeTimer) SetIRQEnabled(bool)   {}
func (f *fakeTimer) IRQ() types.IRQConfig { return f.irq.Configs[0] }

type fakeSerial struct {
	base
	irq types.IRQInfo
}

func (f *fakeSerial) SetFormat(types.SerialFormat) error { return nil }
func (f *fakeSerial) WriteByte(byte) error               { return nil }
func (f *fakeSerial) ReadByte() (byte, error)            { return 0, errcode.Busy }

type fakeI2C struct {
	base
	mu   sync.Mutex
	txs  []uint16
	onTx func()
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.onTx != nil {
		f.onTx()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, addr)
	return nil
}

type fakeSensor struct {
	base
	bus drivers.I2C
}

func (f *fakeSensor) Info() types.SensorInfo { return types.SensorInfo{Sensor: "fake", Addr: 0x70} }
func (f *fakeSensor) Read() (types.Measurement, error) {
	if err := f.bus.Tx(0x70, []byte{0}, make([]byte, 2)); err != nil {
		return types.Measurement{}, err
	}
	return types.Measurement{DeciC: 215, RHx100: 4000}, nil
}

// counter counts probe invocations and can be told to fail.
type counter struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (c *counter) hit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.fail
}

func (c *counter) n() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *counter) setFail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func intcRegister(name string, c *counter, compat ...string) driver.Register {
	if len(compat) == 0 {
		compat = []string{"test,intc"}
	}
	return driver.Register{Name: name, Probes: []driver.ProbeKind{{
		Compatibles: compat,
		OnProbe: driver.OnProbeIntc(func(n driver.Node) (driver.Intc, error) {
			if err := c.hit(); err != nil {
				return nil, err
			}
			return &fakeIntc{parser: addCells}, nil
		}),
	}}}
}

func timerRegister(name string, c *counter, got *types.IRQInfo) driver.Register {
	return driver.Register{Name: name, Probes: []driver.ProbeKind{{
		Compatibles: []string{"test,timer"},
		OnProbe: driver.OnProbeTimer(func(n driver.Node, irq types.IRQInfo) (driver.Timer, error) {
			if err := c.hit(); err != nil {
				return nil, err
			}
			if got != nil {
				*got = irq
			}
			return &fakeTimer{irq: irq}, nil
		}),
	}}}
}

func serialRegister(name string, c *counter) driver.Register {
	return driver.Register{Name: name, Probes: []driver.ProbeKind{{
		Compatibles: []string{"test,uart"},
		OnProbe: driver.OnProbeSerial(func(n driver.Node, irq types.IRQInfo) (driver.Serial, error) {
			if err := c.hit(); err != nil {
				return nil, err
			}
			return &fakeSerial{irq: irq}, nil
		}),
	}}}
}

func i2cRegister(name string, c *counter, ctrl *fakeI2C) driver.Register {
	return driver.Register{Name: name, Probes: []driver.ProbeKind{{
		Compatibles: []string{"test,i2c"},
		OnProbe: driver.OnProbeI2C(func(n driver.Node, irq types.IRQInfo) (driver.I2C, error) {
			if err := c.hit(); err != nil {
				return nil, err
			}
			return ctrl, nil
		}),
	}}}
}

func sensorRegister(name string, c *counter) driver.Register {
	return driver.Register{Name: name, Probes: []driver.ProbeKind{{
		Compatibles: []string{"test,sensor"},
		OnProbe: driver.OnProbeSensor(func(n driver.Node, bus drivers.I2C) (driver.Sensor, error) {
			if err := c.hit(); err != nil {
				return nil, err
			}
			return &fakeSensor{bus: bus}, nil
		}),
	}}}
}
