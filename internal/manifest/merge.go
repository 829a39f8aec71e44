package manifest

import (
	"fmt"

	"github.com/04d4/spinta/internal/core"
)

// MergeModel folds a freshly inspected model into the resource. A new model
// is inserted as is. An existing one keeps its property order and gains new
// properties at the end; properties missing from fresh are marked stale.
// Hand-authored title, description, access and base survive when fresh
// carries none. The caller holds the dataset's write lock.
func (d *Dataset) MergeModel(resource string, fresh *Model) (*Model, core.Diagnostics, error) {
	r, ok := d.Resources.Get(resource)
	if !ok {
		return nil, nil, fmt.Errorf("dataset %s: resource %q not found", d.Name, resource)
	}
	if fresh == nil || fresh.Name == "" {
		return nil, nil, fmt.Errorf("dataset %s/%s: model name is required", d.Name, resource)
	}
	if fresh.Properties == nil {
		fresh.Properties = NewModel(fresh.Name).Properties
	}

	prior, ok := r.Models.Get(fresh.Name)
	if !ok {
		fresh.Status = StatusActive
		for _, p := range fresh.PropertyList() {
			p.Status = StatusActive
		}
		fresh.updateLevels()
		r.Models.Set(fresh.Name, fresh)
		return fresh, nil, nil
	}

	base := Path{Dataset: d.Name, Resource: resource, Model: prior.Name}
	var diags core.Diagnostics

	prior.Source = keep(prior.Source, fresh.Source)
	prior.Kind = keep(prior.Kind, fresh.Kind)
	prior.Base = keep(prior.Base, fresh.Base)
	prior.Title = keep(prior.Title, fresh.Title)
	prior.Description = keep(prior.Description, fresh.Description)
	if len(fresh.PrimaryKey) > 0 {
		prior.PrimaryKey = append([]string(nil), fresh.PrimaryKey...)
	}
	prior.Status = StatusActive

	seen := make(map[string]bool, fresh.Properties.Len())
	for _, fp := range fresh.PropertyList() {
		seen[fp.Name] = true
		pp, ok := prior.Properties.Get(fp.Name)
		if !ok {
			fp.Status = StatusActive
			prior.Properties.Set(fp.Name, fp)
			continue
		}
		path := base
		path.Property = pp.Name
		if diag, conflict := mergeProperty(path, pp, fp); conflict {
			diags = append(diags, diag)
		}
	}

	for _, pp := range prior.PropertyList() {
		if seen[pp.Name] {
			continue
		}
		pp.Status = StatusStale
		path := base
		path.Property = pp.Name
		diags = append(diags, core.Warning(core.KindMergeConflict, path.String(),
			"property not observed in latest inspection, marked stale"))
	}

	prior.updateLevels()
	return prior, diags, nil
}

// mergeProperty updates prior in place from fresh.
func mergeProperty(path Path, prior, fresh *Property) (core.Diagnostic, bool) {
	var (
		diag     core.Diagnostic
		conflict bool
	)
	switch {
	case prior.Type == fresh.Type:
	case !prior.Type.IsKnown():
		prior.Type = fresh.Type
	case !fresh.Type.IsKnown():
	case prior.Type == core.TypeReference && prior.Ref != nil && fresh.Ref == nil:
		// A reference declared by hand on a plain column refines it.
	default:
		diag = core.Warning(core.KindMergeConflict, path.String(),
			"type changed from %s to %s, set to unknown", prior.Type, fresh.Type)
		conflict = true
		prior.Type = core.TypeUnknown
	}

	if fresh.Ref != nil {
		ref := *fresh.Ref
		prior.Ref = &ref
	}
	prior.Target = nil
	prior.Required = fresh.Required
	prior.Source = keep(prior.Source, fresh.Source)
	prior.NativeType = keep(prior.NativeType, fresh.NativeType)
	prior.Title = keep(prior.Title, fresh.Title)
	prior.Description = keep(prior.Description, fresh.Description)
	if fresh.Access != AccessUnset {
		prior.Access = fresh.Access
	}
	prior.Status = StatusActive
	return diag, conflict
}

// MarkStaleModels marks every model of resource whose name is not in seen
// as stale and returns a warning per newly stale model. Call it only after
// an enumeration that completed.
func (d *Dataset) MarkStaleModels(resource string, seen map[string]bool) core.Diagnostics {
	r, ok := d.Resources.Get(resource)
	if !ok {
		return nil
	}
	var diags core.Diagnostics
	for _, m := range r.ModelList() {
		if seen[m.Name] || m.Status == StatusStale {
			continue
		}
		m.Status = StatusStale
		path := Path{Dataset: d.Name, Resource: resource, Model: m.Name}
		diags = append(diags, core.Warning(core.KindMergeConflict, path.String(),
			"model not found in latest inspection, marked stale"))
	}
	return diags
}
