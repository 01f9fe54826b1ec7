package types

// ------------------------
// Interrupts
// ------------------------

// IRQ is a controller-relative interrupt number.
type IRQ uint32

// Trigger describes how an interrupt line signals.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerEdgeRising
	TriggerEdgeFalling
	TriggerEdgeBoth
	TriggerLevelHigh
	TriggerLevelLow
)

func (t Trigger) String() string {
	switch t {
	case TriggerEdgeRising:
		return "edge_rising"
	case TriggerEdgeFalling:
		return "edge_falling"
	case TriggerEdgeBoth:
		return "edge_both"
	case TriggerLevelHigh:
		return "level_high"
	case TriggerLevelLow:
		return "level_low"
	default:
		return "none"
	}
}

func (t Trigger) MarshalJSON() ([]byte, error) { return []byte(`"` + t.String() + `"`), nil }

// IRQConfig is one decoded interrupt specifier.
type IRQConfig struct {
	IRQ     IRQ     `json:"irq"`
	Trigger Trigger `json:"trigger"`
}

// IRQInfo is handed to non-root probes after the interrupt parent resolved.
type IRQInfo struct {
	Parent  DeviceID    `json:"parent"`
	Configs []IRQConfig `json:"configs"`
}

// Empty reports whether no interrupt wiring was resolved.
func (i IRQInfo) Empty() bool { return i.Parent == 0 && len(i.Configs) == 0 }
