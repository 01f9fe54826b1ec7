package types

// ------------------------
// Temperature & humidity
// ------------------------

// Measurement is one sensor reading.
type Measurement struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
	TSms   int64  `json:"ts_ms"`
}

// SensorInfo describes where a sensor sits.
type SensorInfo struct {
	Sensor string `json:"sensor"` // "aht20", "shtc3", ...
	Addr   uint16 `json:"addr"`   // I2C address
	Bus    string `json:"bus"`    // tree path of the I2C controller
}
