package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/04d4/spinta/internal/config"
	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/storage"
	"github.com/04d4/spinta/internal/typemap"
)

// app carries what every command needs once flags and config are loaded.
type app struct {
	registry *endpoint.Registry
	types    *typemap.Registry

	cfg   *config.Config
	log   *logrus.Logger
	store *storage.Store
}

func newRootCmd(a *app) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "spinta",
		Short: "Inspect backends into a canonical manifest",
		Long: `Spinta connects to SQL databases, SAS libraries (through a JDBC
gateway) and MongoDB, describes their tables, views and collections, and
merges the result into a tabular manifest that keeps hand edits across runs.

Settings come from flags, SPINTA_* environment variables and an optional
config file, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd, cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "info", "log level: panic, fatal, error, warn, info, debug, trace")
	cmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	cmd.AddCommand(
		newInspectCmd(a),
		newCheckCmd(a),
		newBackendsCmd(a),
	)
	return cmd
}

// flagKeys binds command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":         config.KeyLogLevel,
	"log-format":        config.KeyLogFormat,
	"workers":           config.KeyWorkers,
	"resource-workers":  config.KeyResourceWorkers,
	"call-timeout":      config.KeyCallTimeout,
	"connect-timeout":   config.KeyConnectTimeout,
	"grace-period":      config.KeyGracePeriod,
	"sample-size":       config.KeySampleSize,
	"failure-threshold": config.KeyFailureThreshold,
}

func (a *app) load(cmd *cobra.Command, cfgFile string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log := cfg.Logger()
	log.SetOutput(cmd.ErrOrStderr())
	if cfgFile != "" {
		log.WithField("file", v.ConfigFileUsed()).Debug("Using config file")
	}

	remote, err := cfg.RemoteStore()
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	a.store = storage.New(storage.WithRemote(remote), storage.WithLogger(log))
	return nil
}

// printDiagnostics writes one line per diagnostic.
func printDiagnostics(w io.Writer, diags core.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintln(w, d.String())
	}
}
