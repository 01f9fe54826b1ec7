package driver

import (
	"slices"
	"sync"

	"rdrive-go/types"

	"tinygo.org/x/drivers"
)

// OnProbe is a kind-tagged probe callback. The concrete types are the
// OnProbe* function types below.
type OnProbe interface {
	Kind() types.Kind
	isOnProbe()
}

// OnProbeIntc instantiates an interrupt controller for a node.
type OnProbeIntc func(n Node) (Intc, error)

// OnProbeTimer instantiates a timer; irq carries the decoded wiring.
type OnProbeTimer func(n Node, irq types.IRQInfo) (Timer, error)

// OnProbeSerial instantiates a UART; irq is empty for polled ports.
type OnProbeSerial func(n Node, irq types.IRQInfo) (Serial, error)

// OnProbeI2C instantiates an I²C controller.
type OnProbeI2C func(n Node, irq types.IRQInfo) (I2C, error)

// OnProbeSensor instantiates a sensor on the bus of its parent controller.
type OnProbeSensor func(n Node, bus drivers.I2C) (Sensor, error)

func (OnProbeIntc) Kind() types.Kind   { return types.KindIntc }
func (OnProbeTimer) Kind() types.Kind  { return types.KindTimer }
func (OnProbeSerial) Kind() types.Kind { return types.KindSerial }
func (OnProbeI2C) Kind() types.Kind    { return types.KindI2C }
func (OnProbeSensor) Kind() types.Kind { return types.KindSensor }

func (OnProbeIntc) isOnProbe()   {}
func (OnProbeTimer) isOnProbe()  {}
func (OnProbeSerial) isOnProbe() {}
func (OnProbeI2C) isOnProbe()    {}
func (OnProbeSensor) isOnProbe() {}

// ProbeKind is a device-tree probe: the compatible strings it answers to and
// the callback run on a match.
type ProbeKind struct {
	Compatibles []string
	OnProbe     OnProbe
}

// Kind returns the kind of the callback.
func (p ProbeKind) Kind() types.Kind { return p.OnProbe.Kind() }

// Match returns the first of p's compatibles found anywhere in n's
// `compatible` list.
func (p ProbeKind) Match(n Node) (string, bool) {
	nodeCompat := n.Compatibles()
	for _, c := range p.Compatibles {
		if slices.Contains(nodeCompat, c) {
			return c, true
		}
	}
	return "", false
}

// Register is one driver's entry in the registry. Immutable once added.
type Register struct {
	Name   string
	Probes []ProbeKind
}

// HasKind reports whether any of r's probes is of kind k.
func (r Register) HasKind(k types.Kind) bool {
	for _, p := range r.Probes {
		if p.OnProbe != nil && p.Kind() == k {
			return true
		}
	}
	return false
}

// ---- Link table ----

var (
	linkMu sync.RWMutex
	linked []Register
)

// Link adds r to the table of compiled-in drivers. Driver packages call it
// from init so that importing the package is enough to make it available.
func Link(r Register) {
	if r.Name == "" {
		panic("driver: empty register name")
	}
	linkMu.Lock()
	defer linkMu.Unlock()
	linked = append(linked, r)
}

// Linked returns a copy of the compiled-in table in link order.
func Linked() []Register {
	linkMu.RLock()
	defer linkMu.RUnlock()
	return slices.Clone(linked)
}
