package aht20

import (
	"rdrive-go/driver"

	"tinygo.org/x/drivers"
)

var Compatibles = []string{"aosong,aht20", "aosong,aht10"}

func init() { driver.Link(Register(Timing{})) }

// Register builds the registry entry. The address comes from `reg` and
// defaults to 0x38.
func Register(t Timing) driver.Register {
	return driver.Register{
		Name: "aht20",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeSensor(func(n driver.Node, bus drivers.I2C) (driver.Sensor, error) {
				addr, _ := driver.BusAddr(n)
				return New(bus, addr, driver.ParentPath(n), t), nil
			}),
		}},
	}
}
