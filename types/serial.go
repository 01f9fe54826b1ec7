package types

// ------------------------
// Serial
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

// SerialFormat is the line format a serial driver is configured with.
type SerialFormat struct {
	Baud     uint32 `json:"baud"` // 0 keeps the firmware setting
	DataBits uint8  `json:"data_bits"`
	StopBits uint8  `json:"stop_bits"`
	Parity   Parity `json:"parity"`
}

// DefaultSerialFormat is 115200 8N1.
var DefaultSerialFormat = SerialFormat{Baud: 115200, DataBits: 8, StopBits: 1, Parity: ParityNone}
