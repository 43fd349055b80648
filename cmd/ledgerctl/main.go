// Command ledgerctl inspects and edits a ledger world state stored in a Bolt
// file or a LevelDB directory.
//
// Usage:
//
//	ledgerctl share put acme alice 100
//	ledgerctl share list acme
//	ledgerctl dump
//	ledgerctl --commit-log commits.log log -v
package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/divvy/ledger"
	"github.com/divvy/ledger/worldstate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	configPath  string
	backend     string
	path        string
	commitLog   string
	verbose     bool
	showMetrics bool

	cfg     *Config
	logger  *slog.Logger
	reg     *prometheus.Registry
	metrics *worldstate.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and edit a ledger world state",
		Long: `ledgerctl opens a world state file and runs one transaction against it.

Settings come from a YAML config file (--config), then LEDGER_BACKEND,
LEDGER_PATH and LEDGER_COMMIT_LOG, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.showMetrics {
				a.printMetrics(cmd)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "ledgerctl.yaml", "config file")
	pf.StringVar(&a.backend, "backend", "", "storage backend (bolt or leveldb)")
	pf.StringVar(&a.path, "path", "", "world state file or directory")
	pf.StringVar(&a.commitLog, "commit-log", "", "commit log file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log every read and write")
	pf.BoolVar(&a.showMetrics, "metrics", false, "print world state metrics when done")

	root.AddCommand(newShareCmd(a), newDumpCmd(a), newInfoCmd(a), newLogCmd(a))
	return root
}

func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("path") {
		cfg.Path = a.path
	}
	if flags.Changed("commit-log") {
		cfg.CommitLog = a.commitLog
	}
	if flags.Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.reg = prometheus.NewRegistry()
	a.metrics = worldstate.NewMetrics(a.reg)
	return nil
}

func (a *app) open() (*worldstate.State, error) {
	o := worldstate.Options{
		Logger:    a.logger,
		Verbose:   a.cfg.Verbose,
		Metrics:   a.metrics,
		CommitLog: a.cfg.CommitLog,
	}
	var (
		st  *worldstate.State
		err error
	)
	switch a.cfg.Backend {
	case BackendLevelDB:
		st, err = worldstate.OpenLevelDB(a.cfg.Path, o)
	default:
		st, err = worldstate.OpenBolt(a.cfg.Path, o)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Debug("ledgerctl: opened", "backend", a.cfg.Backend, "path", a.cfg.Path, "info", st.Info())
	return st, nil
}

// listOpts are the ledger.NewList options implied by the config.
func (a *app) listOpts() []any {
	opts := []any{a.logger}
	if a.cfg.Encoding == "msgpack" {
		opts = append(opts, ledger.MsgPack)
	}
	if a.cfg.Verbose {
		opts = append(opts, ledger.Verbose)
	}
	return opts
}

func (a *app) printMetrics(cmd *cobra.Command) {
	mfs, err := a.reg.Gather()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "ledgerctl: metrics: %v\n", err)
		return
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", mf.GetName(), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", mf.GetName(), m.GetGauge().GetValue())
			}
		}
	}
}
