// Package drivers aggregates the in-tree driver registers.
//
// Importing it links every driver into driver.Linked through their init
// functions. Builtin builds the same set against explicit collaborators,
// for hosts and tests that must not use the installed mapper.
package drivers

import (
	"rdrive-go/driver"
	"rdrive-go/drivers/aht20"
	"rdrive-go/drivers/armtimer"
	"rdrive-go/drivers/dwi2c"
	"rdrive-go/drivers/gicv2"
	"rdrive-go/drivers/pl011"
	shtc3dev "rdrive-go/drivers/shtc3"
	"rdrive-go/mmio"
)

// Builtin returns every in-tree register, mapping windows through m and
// reading time from c.
func Builtin(m mmio.Mapper, c armtimer.Counter) []driver.Register {
	return []driver.Register{
		gicv2.Register(m),
		dwi2c.Register(m),
		armtimer.Register(c),
		pl011.Register(m),
		shtc3dev.Register(),
		aht20.Register(aht20.Timing{}),
	}
}
