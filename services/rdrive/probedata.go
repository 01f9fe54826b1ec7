package rdrive

import (
	"cmp"
	"fmt"
	"slices"

	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/types"
)

// match is one (node, register, probe kind) hit of a resolver pass.
type match struct {
	index    int
	register string
	compat   string
	probe    driver.ProbeKind
	node     driver.Node
}

// probeData is the tree resolver. It outlives every pass and only grows:
// interrupt controllers add their phandle bookkeeping, I2C controllers
// their node path.
type probeData struct {
	tree      driver.Tree
	intcIDs   map[types.Phandle]types.DeviceID
	parsers   map[types.Phandle]driver.CellParser
	i2cByPath map[string]types.DeviceID
}

func newProbeData(t driver.Tree) *probeData {
	return &probeData{
		tree:      t,
		intcIDs:   map[types.Phandle]types.DeviceID{},
		parsers:   map[types.Phandle]driver.CellParser{},
		i2cByPath: map[string]types.DeviceID{},
	}
}

// matches walks the tree once and returns every hit among cands whose kind
// passes want, ordered by kind rank and then tree order.
func (pd *probeData) matches(cands []driver.Indexed, want func(types.Kind) bool) []match {
	var out []match
	for n := range pd.tree.Nodes() {
		for _, c := range cands {
			for _, p := range c.Register.Probes {
				if p.OnProbe == nil || !want(p.Kind()) {
					continue
				}
				compat, ok := p.Match(n)
				if !ok {
					continue
				}
				out = append(out, match{
					index:    c.Index,
					register: c.Register.Name,
					compat:   compat,
					probe:    p,
					node:     n,
				})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b match) int {
		return cmp.Compare(a.probe.Kind().Rank(), b.probe.Kind().Rank())
	})
	return out
}

// bindIntc records a probed controller. The first binding of a phandle wins.
func (pd *probeData) bindIntc(ph types.Phandle, id types.DeviceID, p driver.CellParser) bool {
	if _, taken := pd.intcIDs[ph]; taken {
		return false
	}
	pd.intcIDs[ph] = id
	pd.parsers[ph] = p
	return true
}

// irqInfo resolves n's interrupt parent and decodes its `interrupts` with
// the parent's parser. When required is false a node without interrupts
// yields an empty IRQInfo and a nil parent.
func (pd *probeData) irqInfo(op string, n driver.Node, required bool) (types.IRQInfo, *types.DeviceID, error) {
	groups := n.Interrupts()
	if !required && len(groups) == 0 {
		return types.IRQInfo{}, nil, nil
	}
	parent, ok := n.InterruptParent()
	if !ok {
		if !required {
			return types.IRQInfo{}, nil, errcode.FdtErr(op, n.Path()+": interrupts without interrupt-parent")
		}
		return types.IRQInfo{}, nil, errcode.FdtErr(op, n.Path()+": no interrupt-parent")
	}
	ph, ok := parent.Phandle()
	if !ok {
		return types.IRQInfo{}, nil, errcode.FdtErr(op, parent.Path()+": interrupt parent has no phandle")
	}
	id, ok := pd.intcIDs[ph]
	if !ok {
		return types.IRQInfo{}, nil, errcode.FdtErr(op, fmt.Sprintf("%s: interrupt parent phandle %#x not probed", n.Path(), uint32(ph)))
	}
	parse := pd.parsers[ph]
	info := types.IRQInfo{Parent: id, Configs: make([]types.IRQConfig, 0, len(groups))}
	for i, cells := range groups {
		cfg, err := parse(cells)
		if err != nil {
			return types.IRQInfo{}, nil, &errcode.E{
				C:   errcode.Fdt,
				Op:  op,
				Msg: fmt.Sprintf("%s: interrupts[%d]", n.Path(), i),
				Err: err,
			}
		}
		info.Configs = append(info.Configs, cfg)
	}
	return info, &id, nil
}

// i2cParent returns the controller a sensor node hangs off.
func (pd *probeData) i2cParent(op string, n driver.Node) (types.DeviceID, error) {
	p, ok := n.Parent()
	if !ok {
		return 0, errcode.FdtErr(op, n.Path()+": sensor at tree root")
	}
	id, ok := pd.i2cByPath[p.Path()]
	if !ok {
		return 0, errcode.FdtErr(op, n.Path()+": parent "+p.Path()+" is not a probed i2c controller")
	}
	return id, nil
}
