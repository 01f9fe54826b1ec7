// Package poller periodically reads every probed sensor and publishes the
// measurements on the bus.
package poller

import (
	"context"
	"errors"
	"math"
	"time"

	"rdrive-go/bus"
	"rdrive-go/device"
	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/lock"
	"rdrive-go/types"

	"go.uber.org/zap"
)

// Owner is the borrower id the poller uses on sensors.
const Owner lock.Owner = 1 << 63

// DefaultInterval between polls.
const DefaultInterval = 5 * time.Second

var topicConfig = bus.T("config", "poller")

// maxSeconds keeps a seconds payload inside time.Duration.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// ConfigTopic is where interval changes are published. The payload is
// Config or a map with an "interval" key in seconds.
func ConfigTopic() bus.Topic { return topicConfig }

// EnvTopic carries the latest Reading of a sensor, retained.
func EnvTopic(id types.DeviceID) bus.Topic { return bus.T("env", id.String()) }

// ErrTopic carries read failures of a sensor.
func ErrTopic(id types.DeviceID) bus.Topic { return bus.T("env", id.String(), "error") }

// Config is the typed interval payload.
type Config struct {
	Interval time.Duration
}

// Reading is the payload of EnvTopic.
type Reading struct {
	Sensor types.SensorInfo  `json:"sensor"`
	Value  types.Measurement `json:"value"`
}

// Source lists the sensors to poll; *rdrive.Manager satisfies it.
type Source interface {
	SensorAll() []device.Weak[driver.Sensor]
}

type Service struct {
	src      Source
	interval time.Duration
	log      *zap.Logger
}

func New(src Source, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, interval: interval, log: log.Named("poller")}
}

// PollOnce reads every sensor that is not borrowed elsewhere and returns how
// many readings were published.
func (s *Service) PollOnce(conn *bus.Connection) int {
	n := 0
	for _, w := range s.src.SensorAll() {
		g, err := w.TryBorrow(Owner)
		if err != nil {
			// Busy sensors are picked up next round; released ones are gone.
			s.log.Debug("skip", zap.Stringer("device_id", w.ID()), zap.Error(err))
			continue
		}
		info, m, err := read(g)
		if err != nil {
			s.log.Warn("read failed", zap.Stringer("device_id", w.ID()), zap.Error(err))
			conn.Publish(conn.NewMessage(ErrTopic(w.ID()), string(errcode.Of(err)), false))
			continue
		}
		conn.Publish(conn.NewMessage(EnvTopic(w.ID()), Reading{Sensor: info, Value: m}, true))
		n++
	}
	return n
}

// read takes one measurement and releases g, even if the driver panics.
func read(g *lock.Guard[driver.Sensor]) (types.SensorInfo, types.Measurement, error) {
	defer g.Release()
	sensor := *g.Value()
	m, err := sensor.Read()
	return sensor.Info(), m, err
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return
		case <-tick.C:
			s.PollOnce(conn)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			iv, err := interval(msg.Payload)
			if err != nil {
				s.log.Warn("bad config", zap.Any("payload", msg.Payload), zap.Error(err))
				continue
			}
			tick.Reset(iv)
			s.log.Info("interval set", zap.Duration("interval", iv))
		}
	}
}

func interval(p any) (time.Duration, error) {
	switch v := p.(type) {
	case Config:
		if v.Interval > 0 {
			return v.Interval, nil
		}
	case map[string]any:
		f, ok := v["interval"].(float64)
		if ok && f > 0 && f < maxSeconds {
			if d := time.Duration(f * float64(time.Second)); d > 0 {
				return d, nil
			}
		}
	}
	return 0, &errcode.E{C: errcode.InvalidParams, Op: "poller config", Err: errors.New("want a positive interval")}
}

// Start runs the poll loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
