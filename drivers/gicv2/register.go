package gicv2

import (
	"rdrive-go/driver"
	"rdrive-go/mmio"
)

// Compatibles this driver answers to.
var Compatibles = []string{"arm,cortex-a15-gic", "arm,gic-400", "arm,cortex-a9-gic"}

func init() { driver.Link(Register(mmio.Installed)) }

// Register builds the registry entry, mapping windows through m.
func Register(m mmio.Mapper) driver.Register {
	return driver.Register{
		Name: "gicv2",
		Probes: []driver.ProbeKind{{
			Compatibles: Compatibles,
			OnProbe: driver.OnProbeIntc(func(n driver.Node) (driver.Intc, error) {
				dist, err := mmio.MapNode(m, n, 0)
				if err != nil {
					return nil, err
				}
				cpu, err := mmio.MapNode(m, n, 1)
				if err != nil {
					return nil, err
				}
				d := New(dist, cpu)
				if err := d.Open(); err != nil {
					return nil, err
				}
				return d, nil
			}),
		}},
	}
}

// CellParser returns ParseCells.
func (d *Device) CellParser() driver.CellParser { return ParseCells }
