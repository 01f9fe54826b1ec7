package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"rdrive-go/bus"
	"rdrive-go/driver"
	"rdrive-go/drivers"
	"rdrive-go/drivers/armtimer"
	"rdrive-go/fdt"
	"rdrive-go/mmio"
	"rdrive-go/services/config"
	"rdrive-go/services/rdrive"
	"rdrive-go/types"
	"rdrive-go/x/strx"

	"github.com/leodido/structcli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build metadata injected via ldflags.
var (
	version = ""
	commit  = ""
)

// simCounterHz is the generic timer frequency of the simulated machine.
const simCounterHz = 62_500_000

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "rdrive",
		Short: "Inspect device trees and dry-run driver probing",
		Long: `rdrive loads a flattened device tree blob and runs the same probing passes
a kernel boot would, against the in-tree drivers and simulated register
windows. It shows which nodes bind to which drivers, how interrupt wiring
resolves, and which probes fail.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(treeCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(versionCmd())
	return root
}

// ---- enum flags ----

type outputFormat uint8

const (
	formatText outputFormat = iota
	formatJSON
)

var formatIDs = map[outputFormat][]string{
	formatText: {"text"},
	formatJSON: {"json"},
}

var policyIDs = map[config.Policy][]string{
	config.PolicyPerCandidate: {config.PolicyPerCandidate.String()},
	config.PolicyAbortBatch:   {config.PolicyAbortBatch.String()},
}

var levelIDs = map[zapcore.Level][]string{
	zapcore.DebugLevel: {"debug"},
	zapcore.InfoLevel:  {"info"},
	zapcore.WarnLevel:  {"warn"},
	zapcore.ErrorLevel: {"error"},
}

func parseEnum[E ~uint8 | ~int8](typ, s string, ids map[E][]string) (E, error) {
	var v E
	if err := enumflag.New(&v, typ, ids, enumflag.EnumCaseInsensitive).Set(s); err != nil {
		return v, fmt.Errorf("unknown %s: %q", typ, s)
	}
	return v, nil
}

// ---- tree ----

// TreeOptions defines flags for the tree subcommand.
type TreeOptions struct {
	Format outputFormat `flag:"format" flagshort:"f" flagdescr:"Output format (text, json)" flagcustom:"true"`
}

func (o *TreeOptions) Attach(c *cobra.Command) error {
	return structcli.Define(c, o)
}

func (o *TreeOptions) DefineFormat(name, short, descr string, _ reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	p := fieldValue.Addr().Interface().(*outputFormat)
	return enumflag.New(p, "format", formatIDs, enumflag.EnumCaseInsensitive), descr
}

func (o *TreeOptions) DecodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum("format", s, formatIDs)
}

type nodeView struct {
	Path        string   `json:"path"`
	Compatibles []string `json:"compatible,omitempty"`
	Phandle     uint32   `json:"phandle,omitempty"`
}

func treeCmd() *cobra.Command {
	opts := &TreeOptions{}
	cmd := &cobra.Command{
		Use:   "tree <file.dtb>",
		Short: "List the nodes of a device tree blob",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			tree, release, err := loadTree(args[0])
			if err != nil {
				return err
			}
			defer release()

			var nodes []nodeView
			for n := range tree.Nodes() {
				v := nodeView{Path: n.Path(), Compatibles: n.Compatibles()}
				if ph, ok := n.Phandle(); ok {
					v.Phandle = uint32(ph)
				}
				nodes = append(nodes, v)
			}
			if opts.Format == formatJSON {
				return printJSON(c.OutOrStdout(), nodes)
			}
			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tPHANDLE\tCOMPATIBLE")
			for _, v := range nodes {
				ph := "-"
				if v.Phandle != 0 {
					ph = fmt.Sprintf("%#x", v.Phandle)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Path, ph, strx.Coalesce(strings.Join(v.Compatibles, ","), "-"))
			}
			return tw.Flush()
		},
	}
	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// ---- probe ----

// ProbeOptions defines flags for the probe subcommand. Unset flags fall back
// to the rdrive.* keys of /chosen/bootargs.
type ProbeOptions struct {
	Policy   config.Policy `flag:"policy" flagshort:"p" flagdescr:"Failure policy (per-candidate, abort-batch)" flagcustom:"true"`
	Format   outputFormat  `flag:"format" flagshort:"f" flagdescr:"Output format (text, json)" flagcustom:"true"`
	LogLevel zapcore.Level `flag:"log-level" flagshort:"l" flagdescr:"Log level (debug, info, warn, error)" flagcustom:"true"`
	Announce bool          `flag:"announce" flagdescr:"Also list bus announcements"`
}

func (o *ProbeOptions) Attach(c *cobra.Command) error {
	o.LogLevel = zapcore.WarnLevel
	return structcli.Define(c, o)
}

func (o *ProbeOptions) DefinePolicy(name, short, descr string, _ reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	p := fieldValue.Addr().Interface().(*config.Policy)
	return enumflag.New(p, "policy", policyIDs, enumflag.EnumCaseInsensitive), descr
}

func (o *ProbeOptions) DecodePolicy(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum("policy", s, policyIDs)
}

func (o *ProbeOptions) DefineFormat(name, short, descr string, _ reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	p := fieldValue.Addr().Interface().(*outputFormat)
	return enumflag.New(p, "format", formatIDs, enumflag.EnumCaseInsensitive), descr
}

func (o *ProbeOptions) DecodeFormat(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum("format", s, formatIDs)
}

func (o *ProbeOptions) DefineLogLevel(name, short, descr string, _ reflect.StructField, fieldValue reflect.Value) (pflag.Value, string) {
	p := fieldValue.Addr().Interface().(*zapcore.Level)
	return enumflag.New(p, "level", levelIDs, enumflag.EnumCaseInsensitive), descr
}

func (o *ProbeOptions) DecodeLogLevel(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return input, nil
	}
	return parseEnum("level", s, levelIDs)
}

// probeReport is the JSON shape of a probe run.
type probeReport struct {
	Policy        string             `json:"policy"`
	Devices       []types.Descriptor `json:"devices"`
	Unregistered  []string           `json:"unregistered,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	Announcements []string           `json:"announcements,omitempty"`
}

func probeCmd() *cobra.Command {
	opts := &ProbeOptions{}
	cmd := &cobra.Command{
		Use:   "probe <file.dtb>",
		Short: "Probe the in-tree drivers against a device tree blob",
		Long: `Probe runs interrupt controllers, I2C controllers, timers and then every
remaining driver, in that order, over simulated register windows, and prints
the resulting devices.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(c *cobra.Command, args []string) error {
			return structcli.Unmarshal(c, opts)
		},
		RunE: func(c *cobra.Command, args []string) error {
			tree, release, err := loadTree(args[0])
			if err != nil {
				return err
			}
			defer release()

			cfg, err := config.FromTree(tree)
			if err != nil {
				return err
			}
			if c.Flags().Changed("policy") {
				cfg.Policy = opts.Policy
			}
			if _, set := cfg.Args["rdrive.log"]; c.Flags().Changed("log-level") || !set {
				cfg.LogLevel = opts.LogLevel
			}
			if c.Flags().Changed("announce") {
				cfg.Announce = opts.Announce
			}

			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rep, runErr := runProbe(tree, cfg, log)
			if opts.Format == formatJSON {
				if err := printJSON(c.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				printReport(c.OutOrStdout(), rep)
			}
			return runErr
		},
	}
	if err := opts.Attach(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// runProbe performs the boot probing order over simulated windows.
func runProbe(tree driver.Tree, cfg config.Config, log *zap.Logger) (probeReport, error) {
	b := bus.NewBus(64)
	conn := b.NewConnection("rdrive")
	ropts := []rdrive.Option{rdrive.WithLogger(log), rdrive.WithConfig(cfg)}
	if cfg.Announce {
		ropts = append(ropts, rdrive.WithAnnouncer(conn))
	}
	m := rdrive.New(tree, ropts...)
	m.RegisterAppend(drivers.Builtin(mmio.NewSimSpace(), armtimer.NewSoftCounter(simCounterHz)))

	var errs []error
	for _, step := range []func() error{m.ProbeIntc, m.ProbeI2C, m.ProbeTimer, m.Probe} {
		if err := step(); err != nil {
			errs = append(errs, err)
			if cfg.Policy == config.PolicyAbortBatch {
				break
			}
		}
	}

	rep := probeReport{Policy: m.Policy().String(), Devices: m.Descriptors()}
	for _, x := range m.Unregistered() {
		rep.Unregistered = append(rep.Unregistered, x.Register.Name)
	}
	for _, err := range errs {
		rep.Errors = append(rep.Errors, err.Error())
	}
	if cfg.Announce {
		rep.Announcements = retainedTopics(b)
	}
	return rep, errors.Join(errs...)
}

// retainedTopics lists the retained device announcements on b.
func retainedTopics(b *bus.Bus) []string {
	watch := b.NewConnection("cli")
	defer watch.Disconnect()
	sub := watch.Subscribe(bus.T(rdrive.TopicDev, bus.Multi))
	var out []string
	for {
		select {
		case msg := <-sub.Channel():
			parts := make([]string, len(msg.Topic))
			for i, tok := range msg.Topic {
				parts[i] = fmt.Sprint(tok)
			}
			out = append(out, strings.Join(parts, "/"))
		default:
			return out
		}
	}
}

func printReport(w io.Writer, rep probeReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tDRIVER\tCOMPATIBLE\tPATH\tIRQ-PARENT")
	for _, d := range rep.Devices {
		parent := "-"
		if d.IRQParent != nil {
			parent = d.IRQParent.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, d.Kind, d.Name, d.Compatible, d.Path, parent)
	}
	_ = tw.Flush()
	if len(rep.Unregistered) > 0 {
		fmt.Fprintf(w, "\nunbound drivers: %s\n", strings.Join(rep.Unregistered, ", "))
	}
	for _, a := range rep.Announcements {
		fmt.Fprintf(w, "announced: %s\n", a)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}

// ---- version ----

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tool version",
		RunE: func(c *cobra.Command, args []string) error {
			out := c.OutOrStdout()
			if version == "" {
				fmt.Fprintln(out, "rdrive (dev)")
				return nil
			}
			fmt.Fprintf(out, "rdrive %s", version)
			if commit != "" {
				fmt.Fprintf(out, " (%s)", commit)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// ---- helpers ----

func loadTree(path string) (*fdt.Tree, func(), error) {
	blob, release, err := mapBlob(path)
	if err != nil {
		return nil, nil, err
	}
	h, err := fdt.NewHandle(blob)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	tree, err := h.Parse()
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, release, nil
}

func newLogger(lvl zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
