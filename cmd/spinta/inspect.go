package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/04d4/spinta/internal/config"
	"github.com/04d4/spinta/internal/inspect"
	"github.com/04d4/spinta/internal/manifest"
	"github.com/04d4/spinta/internal/manifest/tabular"
	"github.com/04d4/spinta/internal/storage"
)

type inspectFlags struct {
	targets  []string
	options  []string
	manifest string
	output   string
	prune    bool
	force    bool
}

func newInspectCmd(a *app) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect --target DATASET/RESOURCE=URI... [flags]",
		Short: "Inspect backends and merge them into a manifest",
		Long: `Inspect connects to every target, describes its entities and merges them
into the manifest given by --manifest (or a new one), then writes the result
to --output. A target is DATASET/RESOURCE=URI; the URI scheme selects the
connector (see "spinta backends"). Dataset names may contain slashes; the
last segment before "=" is the resource.

Entries that disappeared from a backend are kept and marked stale unless
--prune is given. Diagnostics are printed to stderr; the command fails when
any of them is an error, after writing whatever could be inspected.`,
		Example: `  spinta inspect --target shop/db=postgres://user@localhost/shop -o manifest.csv
  spinta inspect -m s3://manifests/shop.csv -o s3://manifests/shop.csv \
    --target shop/sas=sas+jdbc://gateway:8080/?target=jdbc:sasiom://sas:8591&schema=SALES`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.targets, "target", "t", nil, "target as DATASET/RESOURCE=URI (repeatable)")
	flags.StringArrayVar(&f.options, "option", nil, "connector option KEY=VALUE applied to every target (repeatable)")
	flags.StringVarP(&f.manifest, "manifest", "m", "", "prior manifest to merge into (path or s3://bucket/key)")
	flags.StringVarP(&f.output, "output", "o", "-", "where to write the manifest (path, s3://bucket/key or - for stdout)")
	flags.BoolVar(&f.prune, "prune", false, "remove stale models and properties instead of keeping them")
	flags.BoolVar(&f.force, "force", false, "write the manifest even if it has validation errors")

	flags.Int("workers", inspect.DefaultWorkers, "concurrent entity inspections per resource")
	flags.Int("resource-workers", inspect.DefaultResourceWorkers, "concurrently inspected resources")
	flags.Duration("call-timeout", inspect.DefaultCallTimeout, "timeout of each connector call")
	flags.Duration("connect-timeout", inspect.DefaultConnectTimeout, "timeout of each connect attempt")
	flags.Duration("grace-period", inspect.DefaultGracePeriod, "time running calls get to finish after interrupt")
	flags.Int("sample-size", config.DefaultSampleSize, "documents sampled per collection")
	flags.Float64("failure-threshold", inspect.DefaultFailureThreshold, "fraction of failed entities that fails a resource")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func (a *app) inspect(cmd *cobra.Command, f *inspectFlags) error {
	ctx := cmd.Context()

	options := a.cfg.TargetOptions()
	for _, o := range f.options {
		k, v, ok := strings.Cut(o, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid option %q, want KEY=VALUE", o)
		}
		options[k] = v
	}
	targets := make([]inspect.Target, 0, len(f.targets))
	for _, raw := range f.targets {
		t, err := parseTarget(raw)
		if err != nil {
			return err
		}
		t.Options = options
		targets = append(targets, t)
	}

	var output storage.Location
	if f.output != "-" {
		loc, err := storage.ParseLocation(f.output)
		if err != nil {
			return err
		}
		output = loc
	}

	var prior *manifest.Manifest
	if f.manifest != "" {
		loc, err := storage.ParseLocation(f.manifest)
		if err != nil {
			return err
		}
		m, diags, err := a.store.Load(ctx, loc)
		printDiagnostics(cmd.ErrOrStderr(), diags)
		if err != nil {
			return fmt.Errorf("load %s: %w", loc, err)
		}
		prior = m
	}

	opts := a.cfg.InspectOptions(a.log)
	opts.Registry = a.registry
	opts.Types = a.types
	opts.Prune = f.prune
	res := inspect.New(opts).Run(ctx, prior, targets)

	printDiagnostics(cmd.ErrOrStderr(), res.Diagnostics)
	for _, rep := range res.Resources {
		a.log.WithFields(logrus.Fields{
			"dataset":   rep.Dataset,
			"resource":  rep.Resource,
			"state":     rep.State,
			"entities":  rep.Entities,
			"inspected": rep.Inspected,
			"failed":    rep.Failed,
		}).Info("Resource summary")
	}

	wopts := tabular.WriteOptions{Force: f.force}
	if f.output == "-" {
		_, err := tabular.Write(cmd.OutOrStdout(), res.Manifest, wopts)
		if err != nil {
			return err
		}
	} else if _, err := a.store.Save(ctx, output, res.Manifest, wopts); err != nil {
		return fmt.Errorf("save %s: %w", output, err)
	}

	if errs := res.Diagnostics.Errors(); len(errs) > 0 {
		return fmt.Errorf("inspection finished with %d errors", len(errs))
	}
	return nil
}

// parseTarget splits DATASET/RESOURCE=URI. The dataset is everything before
// the last slash of the name part.
func parseTarget(raw string) (inspect.Target, error) {
	name, uri, ok := strings.Cut(raw, "=")
	i := strings.LastIndex(name, "/")
	if !ok || uri == "" || i <= 0 || i == len(name)-1 {
		return inspect.Target{}, fmt.Errorf("invalid target %q, want DATASET/RESOURCE=URI", raw)
	}
	return inspect.Target{Dataset: name[:i], Resource: name[i+1:], Source: uri}, nil
}
