// Package config derives the probing engine's settings from the kernel
// command line found in the device tree's /chosen node.
package config

import (
	"strings"

	"rdrive-go/bus"
	"rdrive-go/driver"
	"rdrive-go/errcode"
	"rdrive-go/x/strx"

	"github.com/google/shlex"
	"go.uber.org/zap/zapcore"
)

const (
	keyPrefix  = "rdrive."
	chosenPath = "/chosen"
	bootargs   = "bootargs"
)

// Policy selects how a probing pass reacts to a failing match.
type Policy uint8

const (
	// PolicyPerCandidate skips the failing match and keeps probing its
	// siblings.
	PolicyPerCandidate Policy = iota
	// PolicyAbortBatch stops the pass at the first failure. Devices probed
	// earlier in the pass stay.
	PolicyAbortBatch
)

func (p Policy) String() string {
	switch p {
	case PolicyAbortBatch:
		return "abort-batch"
	default:
		return "per-candidate"
	}
}

// ParsePolicy accepts the String() forms.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "per-candidate":
		return PolicyPerCandidate, nil
	case "abort-batch":
		return PolicyAbortBatch, nil
	}
	return 0, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "unknown policy " + s}
}

// Config is the boot-time configuration.
type Config struct {
	Policy   Policy        `json:"policy"`
	LogLevel zapcore.Level `json:"log_level"`
	Announce bool          `json:"announce"`
	// Args holds every key=value (or bare key) from the command line.
	Args map[string]string `json:"-"`
}

// Default is per-candidate failures, info logging, no announcements.
func Default() Config {
	return Config{Policy: PolicyPerCandidate, LogLevel: zapcore.InfoLevel, Args: map[string]string{}}
}

// Parse reads `rdrive.*` keys from a kernel command line. Unknown keys are
// kept in Args and otherwise ignored.
func Parse(cmdline string) (Config, error) {
	cfg := Default()
	words, err := shlex.Split(cmdline)
	if err != nil {
		return cfg, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "bootargs", Err: err}
	}
	for _, w := range words {
		k, v, _ := strings.Cut(w, "=")
		cfg.Args[k] = v
		if !strings.HasPrefix(k, keyPrefix) {
			continue
		}
		switch strings.TrimPrefix(k, keyPrefix) {
		case "policy":
			if cfg.Policy, err = ParsePolicy(v); err != nil {
				return cfg, err
			}
		case "log":
			lvl, err := zapcore.ParseLevel(v)
			if err != nil {
				return cfg, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "log level", Err: err}
			}
			cfg.LogLevel = lvl
		case "announce":
			on, err := parseBool(v)
			if err != nil {
				return cfg, err
			}
			cfg.Announce = on
		}
	}
	return cfg, nil
}

func parseBool(v string) (bool, error) {
	switch v {
	case "", "1", "on", "true", "yes":
		return true, nil
	case "0", "off", "false", "no":
		return false, nil
	}
	return false, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "bad boolean " + v}
}

// FromTree parses /chosen/bootargs. A tree without either yields Default.
func FromTree(t driver.Tree) (Config, error) {
	chosen, ok := t.ByPath(chosenPath)
	if !ok {
		return Default(), nil
	}
	raw, ok := chosen.Property(bootargs)
	if !ok {
		return Default(), nil
	}
	return Parse(strx.TrimNUL(string(raw)))
}

// Publish announces cfg as a retained message on config/rdrive.
func Publish(conn *bus.Connection, cfg Config) {
	conn.Publish(conn.NewMessage(bus.T("config", "rdrive"), cfg, true))
}
