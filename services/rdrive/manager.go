// Package rdrive matches linked driver registers against the hardware
// description tree and keeps the devices they produce.
//
// A Manager is built once per boot from a parsed tree. Boot code adds the
// linked registers, then runs ordered probing passes: interrupt controllers
// first, so that every later device can have its interrupt wiring decoded
// by the controller that owns it.
package rdrive

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"rdrive-go/bus"
	"rdrive-go/device"
	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/fdt"
	"rdrive-go/lock"
	"rdrive-go/services/config"
	"rdrive-go/types"

	"go.uber.org/zap"
)

// Manager owns the registry, the resolver and one container per kind.
// Mutating calls take the lock exclusively; accessors share it.
type Manager struct {
	mu sync.RWMutex

	reg *driver.Registry
	pd  *probeData

	intc   *device.Container[driver.Intc]
	timer  *device.Container[driver.Timer]
	serial *device.Container[driver.Serial]
	i2c    *device.Container[driver.I2C]
	sensor *device.Container[driver.Sensor]

	log    *zap.Logger
	policy config.Policy
	ann    *bus.Connection
}

// New returns a Manager over tree with an empty registry.
func New(tree driver.Tree, opts ...Option) *Manager {
	m := &Manager{
		reg:    driver.NewRegistry(),
		pd:     newProbeData(tree),
		intc:   device.NewContainer[driver.Intc](),
		timer:  device.NewContainer[driver.Timer](),
		serial: device.NewContainer[driver.Serial](),
		i2c:    device.NewContainer[driver.I2C](),
		sensor: device.NewContainer[driver.Sensor](),
		log:    zap.NewNop(),
		policy: config.PolicyPerCandidate,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewFromHandle parses the blob behind h and builds a Manager over it.
func NewFromHandle(h fdt.Handle, opts ...Option) (*Manager, error) {
	t, err := h.Parse()
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// Tree returns the tree the Manager resolves against.
func (m *Manager) Tree() driver.Tree { return m.pd.tree }

// Policy returns the failure policy in force.
func (m *Manager) Policy() config.Policy { return m.policy }

// ---- Registration ----

func (m *Manager) RegisterAdd(r driver.Register) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.Add(r)
}

func (m *Manager) RegisterAppend(rs []driver.Register) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.Append(rs)
}

// Unregistered lists registers that have not probed successfully yet.
func (m *Manager) Unregistered() []driver.Indexed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Unregistered()
}

// ---- Probing ----

// ProbeIntc probes interrupt controllers. It must run before any pass that
// probes devices wired to them.
func (m *Manager) ProbeIntc() error { return m.ProbeKind(types.KindIntc) }

// ProbeTimer probes timers. Their interrupt controllers must already be
// probed; the Manager does not enforce the order.
func (m *Manager) ProbeTimer() error { return m.ProbeKind(types.KindTimer) }

func (m *Manager) ProbeSerial() error { return m.ProbeKind(types.KindSerial) }
func (m *Manager) ProbeI2C() error    { return m.ProbeKind(types.KindI2C) }
func (m *Manager) ProbeSensor() error { return m.ProbeKind(types.KindSensor) }

// ProbeKind runs one pass restricted to probes of kind k.
func (m *Manager) ProbeKind(k types.Kind) error {
	return m.run("probe "+string(k), func(pk types.Kind) bool { return pk == k })
}

// Probe runs one pass over every remaining register and every kind, in kind
// rank order.
func (m *Manager) Probe() error {
	return m.run("probe", func(types.Kind) bool { return true })
}

func (m *Manager) run(op string, want func(types.Kind) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := m.pd.matches(m.reg.Unregistered(), want)
	m.log.Debug("pass", zap.String("op", op), zap.Int("matches", len(matches)))

	var errs []error
	for _, mt := range matches {
		desc, err := m.dispatch(mt)
		if err != nil {
			m.log.Warn("probe failed",
				zap.String("register", mt.register),
				zap.String("kind", string(mt.probe.Kind())),
				zap.String("path", mt.node.Path()),
				zap.Error(err))
			m.announceError(mt, err)
			if m.policy == config.PolicyAbortBatch {
				return err
			}
			errs = append(errs, err)
			continue
		}
		m.reg.SetProbed(mt.index)
		m.log.Info("probed",
			zap.Stringer("device_id", desc.ID),
			zap.String("name", desc.Name),
			zap.String("kind", string(desc.Kind)),
			zap.String("compatible", desc.Compatible),
			zap.String("path", desc.Path))
		m.announceDevice(desc)
	}
	return errors.Join(errs...)
}

func (m *Manager) dispatch(mt match) (types.Descriptor, error) {
	op := "probe " + string(mt.probe.Kind())
	switch fn := mt.probe.OnProbe.(type) {
	case driver.OnProbeIntc:
		return m.probeIntc(op, mt, fn)
	case driver.OnProbeTimer:
		info, parent, err := m.pd.irqInfo(op, mt.node, true)
		if err != nil {
			return types.Descriptor{}, err
		}
		drv, err := fn(mt.node, info)
		if err := checkDriver(op, drv, err); err != nil {
			return types.Descriptor{}, err
		}
		return insert(m.timer, mt, drv, parent), nil
	case driver.OnProbeSerial:
		info, parent, err := m.pd.irqInfo(op, mt.node, false)
		if err != nil {
			return types.Descriptor{}, err
		}
		drv, err := fn(mt.node, info)
		if err := checkDriver(op, drv, err); err != nil {
			return types.Descriptor{}, err
		}
		return insert(m.serial, mt, drv, parent), nil
	case driver.OnProbeI2C:
		info, parent, err := m.pd.irqInfo(op, mt.node, false)
		if err != nil {
			return types.Descriptor{}, err
		}
		drv, err := fn(mt.node, info)
		if err := checkDriver(op, drv, err); err != nil {
			return types.Descriptor{}, err
		}
		desc := insert(m.i2c, mt, drv, parent)
		m.pd.i2cByPath[desc.Path] = desc.ID
		return desc, nil
	case driver.OnProbeSensor:
		return m.probeSensor(op, mt, fn)
	}
	return types.Descriptor{}, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "unknown probe kind"}
}

func (m *Manager) probeIntc(op string, mt match, fn driver.OnProbeIntc) (types.Descriptor, error) {
	ph, ok := mt.node.Phandle()
	if !ok {
		return types.Descriptor{}, errcode.FdtErr(op, mt.node.Path()+": interrupt controller has no phandle")
	}
	drv, err := fn(mt.node)
	if err := checkDriver(op, drv, err); err != nil {
		return types.Descriptor{}, err
	}
	parser := drv.CellParser()
	if parser == nil {
		_ = drv.Close()
		return types.Descriptor{}, errcode.UnknownErr(op, errors.New(mt.register+": controller supplied no cell parser"))
	}
	desc := insert(m.intc, mt, drv, nil)
	if !m.pd.bindIntc(ph, desc.ID, parser) {
		m.log.Warn("phandle already bound, keeping first controller",
			zap.Uint32("phandle", uint32(ph)),
			zap.Stringer("device_id", desc.ID))
	}
	return desc, nil
}

func (m *Manager) probeSensor(op string, mt match, fn driver.OnProbeSensor) (types.Descriptor, error) {
	ctrlID, err := m.pd.i2cParent(op, mt.node)
	if err != nil {
		return types.Descriptor{}, err
	}
	ctrl, ok := m.i2c.Get(ctrlID)
	if !ok {
		return types.Descriptor{}, &errcode.E{C: errcode.NotFound, Op: op, Msg: "i2c controller " + ctrlID.String()}
	}
	b := &i2cBus{ctrl: ctrl, owner: probeOwner}
	drv, err := fn(mt.node, b)
	if err := checkDriver(op, drv, err); err != nil {
		return types.Descriptor{}, err
	}
	desc := insert(m.sensor, mt, drv, nil)
	b.owner = lock.Owner(desc.ID)
	return desc, nil
}

// checkDriver wraps a probe callback failure and rejects a nil driver.
func checkDriver[T driver.Interface](op string, drv T, err error) error {
	if err != nil {
		return errcode.UnknownErr(op, err)
	}
	if any(drv) == nil {
		return errcode.UnknownErr(op, errors.New("probe returned no driver"))
	}
	return nil
}

func insert[T any](c *device.Container[T], mt match, drv T, irqParent *types.DeviceID) types.Descriptor {
	desc := types.Descriptor{
		ID:         device.NextID(),
		Name:       mt.register,
		Kind:       mt.probe.Kind(),
		Compatible: mt.compat,
		Path:       mt.node.Path(),
		IRQParent:  irqParent,
	}
	c.Insert(device.New(desc, drv))
	return desc
}

// ---- Accessors ----

func (m *Manager) IntcAll() []device.Weak[driver.Intc] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intc.All()
}

func (m *Manager) IntcGet(id types.DeviceID) (device.Weak[driver.Intc], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intc.Get(id)
}

// IntcByPhandle returns the controller bound to a tree phandle.
func (m *Manager) IntcByPhandle(ph types.Phandle) (device.Weak[driver.Intc], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pd.intcIDs[ph]
	if !ok {
		return device.Weak[driver.Intc]{}, false
	}
	return m.intc.Get(id)
}

func (m *Manager) TimerAll() []device.Weak[driver.Timer] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timer.All()
}

func (m *Manager) TimerGet(id types.DeviceID) (device.Weak[driver.Timer], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timer.Get(id)
}

func (m *Manager) SerialAll() []device.Weak[driver.Serial] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serial.All()
}

func (m *Manager) SerialGet(id types.DeviceID) (device.Weak[driver.Serial], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serial.Get(id)
}

func (m *Manager) I2CAll() []device.Weak[driver.I2C] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.i2c.All()
}

func (m *Manager) I2CGet(id types.DeviceID) (device.Weak[driver.I2C], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.i2c.Get(id)
}

func (m *Manager) SensorAll() []device.Weak[driver.Sensor] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sensor.All()
}

func (m *Manager) SensorGet(id types.DeviceID) (device.Weak[driver.Sensor], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sensor.Get(id)
}

// Descriptors returns every probed device across kinds, ordered by id.
func (m *Manager) Descriptors() []types.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Concat(
		m.intc.Descriptors(),
		m.timer.Descriptors(),
		m.serial.Descriptors(),
		m.i2c.Descriptors(),
		m.sensor.Descriptors(),
	)
	slices.SortFunc(out, func(a, b types.Descriptor) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
