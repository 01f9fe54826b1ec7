package rdrive

import (
	"rdrive-go/device"
	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/lock"
)

// probeOwner is the borrower recorded while a sensor's own probe runs,
// before it has a DeviceID. It is distinct from 0, which means no owner.
const probeOwner lock.Owner = ^lock.Owner(0)

// i2cBus is the drivers.I2C a sensor receives. Every Tx borrows the
// controller for its duration.
type i2cBus struct {
	ctrl  device.Weak[driver.I2C]
	owner lock.Owner
}

func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	g := b.ctrl.SpinTryBorrow(b.owner)
	if g == nil {
		return &errcode.E{C: errcode.NotFound, Op: "i2c tx", Msg: "controller " + b.ctrl.ID().String() + " gone"}
	}
	defer g.Release()
	return (*g.Value()).Tx(addr, w, r)
}
