package poller

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"rdrive-go/bus"
	"rdrive-go/device"
	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/types"

	"go.uber.org/zap/zaptest"
)

type fakeSensor struct {
	reads int
	err   error
	panic bool
}

func (f *fakeSensor) Open() error  { return nil }
func (f *fakeSensor) Close() error { return nil }
func (f *fakeSensor) Info() types.SensorInfo {
	return types.SensorInfo{Sensor: "fake", Addr: 0x70, Bus: "/i2c@0"}
}
func (f *fakeSensor) Read() (types.Measurement, error) {
	f.reads++
	if f.panic {
		panic("sensor wedged")
	}
	if f.err != nil {
		return types.Measurement{}, f.err
	}
	return types.Measurement{DeciC: 215, RHx100: 4200}, nil
}

type source struct {
	devs []device.Device[driver.Sensor]
}

func (s *source) add(f *fakeSensor) device.Device[driver.Sensor] {
	d := device.New[driver.Sensor](types.Descriptor{ID: device.NextID(), Kind: types.KindSensor}, f)
	s.devs = append(s.devs, d)
	return d
}

func (s *source) SensorAll() []device.Weak[driver.Sensor] {
	out := make([]device.Weak[driver.Sensor], len(s.devs))
	for i, d := range s.devs {
		out[i] = d.Weak()
	}
	return out
}

func recv(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestPollOncePublishes(t *testing.T) {
	src := &source{}
	ok := src.add(&fakeSensor{})
	bad := src.add(&fakeSensor{err: &errcode.E{C: errcode.Timeout, Op: "read"}})

	b := bus.NewBus(8)
	conn := b.NewConnection("poller")
	errs := conn.Subscribe(ErrTopic(bad.ID()))

	s := New(src, time.Hour, zaptest.NewLogger(t))
	if n := s.PollOnce(conn); n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}

	env := conn.Subscribe(EnvTopic(ok.ID()))
	m := recv(t, env)
	r, isReading := m.Payload.(Reading)
	if !isReading || r.Value.DeciC != 215 || r.Sensor.Sensor != "fake" || !m.Retained {
		t.Fatalf("reading = %+v", m)
	}
	if got := recv(t, errs).Payload; got != string(errcode.Timeout) {
		t.Fatalf("error payload = %v", got)
	}
}

func TestPollOnceSkipsBorrowed(t *testing.T) {
	src := &source{}
	f := &fakeSensor{}
	d := src.add(f)
	g, err := d.Lock().TryBorrow(7)
	if err != nil {
		t.Fatal(err)
	}
	s := New(src, time.Hour, zaptest.NewLogger(t))
	conn := bus.NewBus(4).NewConnection("poller")
	if n := s.PollOnce(conn); n != 0 || f.reads != 0 {
		t.Fatalf("borrowed sensor read: n=%d reads=%d", n, f.reads)
	}
	g.Release()
	if n := s.PollOnce(conn); n != 1 {
		t.Fatalf("n = %d after release", n)
	}
}

func TestPollOnceReleasesOnPanic(t *testing.T) {
	src := &source{}
	f := &fakeSensor{panic: true}
	d := src.add(f)
	s := New(src, time.Hour, zaptest.NewLogger(t))
	conn := bus.NewBus(4).NewConnection("poller")

	func() {
		defer func() { _ = recover() }()
		s.PollOnce(conn)
	}()
	if o, held := d.Lock().Borrowed(); held {
		t.Fatalf("sensor still borrowed by %d", o)
	}

	f.panic = false
	if n := s.PollOnce(conn); n != 1 {
		t.Fatalf("n = %d after recovery", n)
	}
}

func TestIntervalPayloads(t *testing.T) {
	if iv, err := interval(Config{Interval: time.Second}); err != nil || iv != time.Second {
		t.Fatalf("typed: %v %v", iv, err)
	}
	if iv, err := interval(map[string]any{"interval": 0.5}); err != nil || iv != 500*time.Millisecond {
		t.Fatalf("map: %v %v", iv, err)
	}
	for _, bad := range []any{nil, Config{}, map[string]any{"interval": "1s"}, map[string]any{"interval": -1.0},
		map[string]any{"interval": 1e19},
		map[string]any{"interval": math.Inf(1)},
		map[string]any{"interval": math.NaN()},
	} {
		if _, err := interval(bad); !errors.Is(err, errcode.InvalidParams) {
			t.Fatalf("interval(%v) err = %v", bad, err)
		}
	}
}

func TestServiceLoop(t *testing.T) {
	src := &source{}
	d := src.add(&fakeSensor{})

	b := bus.NewBus(8)
	svcConn := b.NewConnection("poller")
	testConn := b.NewConnection("test")
	env := testConn.Subscribe(EnvTopic(d.ID()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(src, time.Hour, zaptest.NewLogger(t))
	if err := s.Start(ctx, svcConn); err != nil {
		t.Fatal(err)
	}

	// The hour-long default would never fire; shorten it over the bus.
	deadline := time.After(2 * time.Second)
	for {
		testConn.Publish(testConn.NewMessage(ConfigTopic(), Config{Interval: 5 * time.Millisecond}, false))
		select {
		case m := <-env.Channel():
			if _, ok := m.Payload.(Reading); !ok {
				t.Fatalf("payload %T", m.Payload)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no reading after interval change")
		}
	}
}
