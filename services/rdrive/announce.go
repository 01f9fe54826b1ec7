package rdrive

import (
	"rdrive-go/bus"
	"rdrive-go/types"
)

// Topic roots. Device topics carry the descriptor, retained, under
// dev/<kind>/<id>; failures go to probe/error/<kind> without retention.
const (
	TopicDev   = "dev"
	TopicProbe = "probe"
	TopicError = "error"
)

// DevTopic is where the descriptor of a probed device is retained.
func DevTopic(k types.Kind, id types.DeviceID) bus.Topic {
	return bus.T(TopicDev, string(k), id.String())
}

// ErrorTopic is where probe failures of kind k are published.
func ErrorTopic(k types.Kind) bus.Topic {
	return bus.T(TopicProbe, TopicError, string(k))
}

// ProbeError is the payload of an ErrorTopic message.
type ProbeError struct {
	Register string     `json:"register"`
	Kind     types.Kind `json:"kind"`
	Path     string     `json:"path"`
	Err      error      `json:"-"`
	Msg      string     `json:"error"`
}

func (m *Manager) announceDevice(d types.Descriptor) {
	if m.ann == nil {
		return
	}
	m.ann.Publish(m.ann.NewMessage(DevTopic(d.Kind, d.ID), d, true))
}

func (m *Manager) announceError(mt match, err error) {
	if m.ann == nil {
		return
	}
	k := mt.probe.Kind()
	m.ann.Publish(m.ann.NewMessage(ErrorTopic(k), ProbeError{
		Register: mt.register,
		Kind:     k,
		Path:     mt.node.Path(),
		Err:      err,
		Msg:      err.Error(),
	}, false))
}
