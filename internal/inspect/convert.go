package inspect

import (
	"fmt"
	"strings"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/manifest"
	"github.com/04d4/spinta/internal/typemap"
)

// converter turns connector descriptors into canonical models.
type converter struct {
	types *typemap.Registry
	kind  string // backend kind of the connector
}

// model builds the canonical model for entity. Diagnostics carry paths
// under base (dataset and resource).
func (c *converter) model(base manifest.Path, entity *endpoint.Entity, fields []*endpoint.Field) (*manifest.Model, core.Diagnostics) {
	m := manifest.NewModel(entity.ModelName())
	m.Source = entity.QualifiedName()
	m.Kind = entity.Kind
	m.Title = entity.Title
	base.Model = m.Name

	var diags core.Diagnostics
	for _, f := range fields {
		path := base
		path.Property = f.Name

		p := &manifest.Property{
			Name:        f.Name,
			Source:      f.Name,
			NativeType:  f.NativeType,
			Required:    !f.Nullable,
			Description: f.Comment,
		}
		var fd core.Diagnostics
		p.Type, fd = c.fieldType(path, f)
		diags = append(diags, fd...)

		if fk := f.ForeignKey; fk != nil {
			p.Type = core.TypeReference
			p.Ref = &manifest.Ref{Model: fk.Entity, Property: fk.Field}
		}
		if err := m.AddProperty(p); err != nil {
			diags = append(diags, core.Warning(core.KindEntityInspection, path.String(), "skipped: %v", err))
			continue
		}
		if f.PrimaryKey {
			m.PrimaryKey = append(m.PrimaryKey, f.Name)
		}
	}
	return m, diags
}

// fieldType maps a field's native type. Fields with several observed native
// types are reconciled; irreconcilable ones become unknown with a
// MergeConflictWarning listing how often each type was seen.
func (c *converter) fieldType(path manifest.Path, f *endpoint.Field) (core.Type, core.Diagnostics) {
	if len(f.Observations) <= 1 {
		t, ok := c.types.Map(c.kind, f.NativeType)
		if !ok {
			return core.TypeUnknown, core.Diagnostics{core.Warning(core.KindTypeMapping, path.String(),
				"unmapped native type %q for backend %s", f.NativeType, c.kind)}
		}
		return t, nil
	}

	var diags core.Diagnostics
	types := make([]core.Type, 0, len(f.Observations))
	for _, o := range f.Observations {
		t, ok := c.types.Map(c.kind, o.NativeType)
		if !ok {
			diags = append(diags, core.Warning(core.KindTypeMapping, path.String(),
				"unmapped native type %q for backend %s", o.NativeType, c.kind))
		}
		types = append(types, t)
	}
	t, conflict := typemap.Reconcile(types...)
	if conflict {
		diags = append(diags, core.Warning(core.KindMergeConflict, path.String(),
			"conflicting types in %d sampled documents: %s", f.Sampled, observed(f, types)))
	}
	return t, diags
}

// observed renders "integer 97/100, string 3/100".
func observed(f *endpoint.Field, types []core.Type) string {
	parts := make([]string, len(f.Observations))
	for i, o := range f.Observations {
		label := string(types[i])
		if !types[i].IsKnown() {
			label = o.NativeType
		}
		parts[i] = fmt.Sprintf("%s %d/%d", label, o.Count, f.Sampled)
	}
	return strings.Join(parts, ", ")
}
