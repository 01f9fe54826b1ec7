package rdrive

import (
	"rdrive-go/bus"
	"rdrive-go/services/config"

	"go.uber.org/zap"
)

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger sets the logger. The Manager names it "rdrive".
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l.Named("rdrive")
		}
	}
}

// WithConfig applies boot-time settings. Later options override it.
func WithConfig(c config.Config) Option {
	return func(m *Manager) { m.policy = c.Policy }
}

// WithPolicy selects the failure policy of probing passes.
func WithPolicy(p config.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithAnnouncer publishes probe results on conn.
func WithAnnouncer(conn *bus.Connection) Option {
	return func(m *Manager) { m.ann = conn }
}
