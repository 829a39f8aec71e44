// Package inspect drives connectors over a set of targets and merges what
// they report into a canonical manifest.
//
// Each target (one resource of one dataset) goes through
//
//	Pending → Connecting → Enumerating → PerEntityInspecting → Merging → Done
//
// or ends in Failed. Resources run concurrently and independently; entities
// of one resource are inspected by a bounded pool and merged in the order
// the connector enumerated them. A failing entity is recorded and skipped.
// Run never returns an error: everything that went wrong is in the
// diagnostics of the Result.
package inspect

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/manifest"
)

// Target is one resource to inspect.
type Target struct {
	Dataset  string
	Resource string
	// Source is the connection descriptor; its scheme selects the connector.
	Source  string
	Options map[string]string
}

func (t Target) path() manifest.Path {
	return manifest.Path{Dataset: t.Dataset, Resource: t.Resource}
}

// Result of one inspection run.
type Result struct {
	RunID    string
	Manifest *manifest.Manifest

	// Diagnostics holds per-resource diagnostics in target order, followed
	// by reference resolution and validation results.
	Diagnostics core.Diagnostics
	Resources   []*ResourceReport
	Pruned      []manifest.Path
}

// Report returns the report of the given resource.
func (r *Result) Report(dataset, resource string) (*ResourceReport, bool) {
	for _, rep := range r.Resources {
		if rep.Dataset == dataset && rep.Resource == resource {
			return rep, true
		}
	}
	return nil, false
}

// Inspector runs inspections.
type Inspector struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates an Inspector. Zero option fields take defaults.
func New(opts Options) *Inspector {
	opts = opts.withDefaults()
	return &Inspector{opts: opts, log: opts.Logger}
}

// Run inspects targets and merges them into prior, or into a new manifest
// when prior is nil. Cancelling ctx stops dispatching work; connector calls
// already running get GracePeriod to finish and are abandoned after that.
func (in *Inspector) Run(ctx context.Context, prior *manifest.Manifest, targets []Target) *Result {
	res := &Result{
		RunID:     uuid.NewString(),
		Manifest:  prior,
		Resources: make([]*ResourceReport, len(targets)),
	}
	if res.Manifest == nil {
		res.Manifest = manifest.New()
	}
	log := in.log.WithField("run", res.RunID)
	log.WithField("targets", len(targets)).Info("Inspection started")

	seen := make(map[manifest.Path]bool, len(targets))
	runs := make([]*resourceRun, 0, len(targets))
	for i, t := range targets {
		rep := newReport(t)
		res.Resources[i] = rep
		if msg := checkTarget(t, seen); msg != "" {
			rep.Diagnostics = append(rep.Diagnostics, core.Errorf(core.KindValidation, t.path().String(), "%s", msg))
			rep.fail(core.Wrap(core.KindValidation, false, fmt.Errorf("%s", msg)))
			continue
		}
		r := &resourceRun{
			Inspector: in,
			target:    t,
			report:    rep,
			manifest:  res.Manifest,
			log: log.WithFields(logrus.Fields{
				"dataset":  t.Dataset,
				"resource": t.Resource,
			}),
		}
		// New datasets and resources enter the manifest in target order.
		r.reserve()
		runs = append(runs, r)
	}

	p := pool.New().WithMaxGoroutines(in.opts.ResourceWorkers)
	for _, r := range runs {
		p.Go(func() { r.run(ctx) })
	}
	p.Wait()

	for _, rep := range res.Resources {
		res.Diagnostics = append(res.Diagnostics, rep.Diagnostics...)
	}
	if in.opts.Prune {
		res.Pruned = res.Manifest.Prune()
		log.WithField("pruned", len(res.Pruned)).Info("Pruned stale entries")
	}
	res.Diagnostics = append(res.Diagnostics, res.Manifest.ResolveReferences()...)
	res.Diagnostics = append(res.Diagnostics, res.Manifest.Validate()...)

	log.WithFields(logrus.Fields{
		"diagnostics": len(res.Diagnostics),
		"errors":      len(res.Diagnostics.Errors()),
	}).Info("Inspection finished")
	return res
}

func checkTarget(t Target, seen map[manifest.Path]bool) string {
	switch {
	case t.Dataset == "":
		return "target dataset is required"
	case t.Resource == "":
		return "target resource is required"
	case seen[t.path()]:
		return "duplicate target"
	}
	seen[t.path()] = true
	return ""
}
