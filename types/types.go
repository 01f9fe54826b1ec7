package types

import "strconv"

// ---- Device identity ----

// DeviceID identifies one probed device for the life of the process.
type DeviceID uint64

func (id DeviceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Phandle is the small integer a tree node exposes so others can refer to it.
type Phandle uint32

// Kind tags a probe callback and the container its device lands in.
type Kind string

const (
	KindIntc   Kind = "intc"
	KindTimer  Kind = "timer"
	KindSerial Kind = "serial"
	KindI2C    Kind = "i2c"
	KindSensor Kind = "sensor"
)

// Kinds lists every kind in dispatch rank order. Interrupt controllers come
// first, then bus controllers, then their consumers.
var Kinds = []Kind{KindIntc, KindI2C, KindTimer, KindSerial, KindSensor}

// Rank returns the dispatch rank of k; unknown kinds sort last.
func (k Kind) Rank() int {
	for i, v := range Kinds {
		if v == k {
			return i
		}
	}
	return len(Kinds)
}

// Descriptor is attached to every probed device.
type Descriptor struct {
	ID         DeviceID  `json:"id"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Compatible string    `json:"compatible"` // the string that matched
	Path       string    `json:"path"`       // tree node path
	IRQParent  *DeviceID `json:"irq_parent,omitempty"`
}

// HasIRQParent reports whether d was wired to an interrupt controller.
func (d Descriptor) HasIRQParent() bool { return d.IRQParent != nil }
