package manifest

import (
	"strings"
	"unicode"

	"github.com/04d4/spinta/internal/core"
)

// Validate checks every invariant of the manifest and returns all
// violations, in manifest order.
func (m *Manifest) Validate() core.Diagnostics {
	datasets, unlock := m.rlockAll()
	defer unlock()

	var v validator
	for _, d := range datasets {
		v.dataset(d)
	}
	return v.diags
}

// HasControl reports whether s contains a control character.
func HasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

type validator struct {
	diags core.Diagnostics
}

func (v *validator) fail(path Path, format string, args ...any) {
	v.diags = append(v.diags, core.Errorf(core.KindValidation, path.String(), format, args...))
}

func (v *validator) text(path Path, field, value string) {
	if HasControl(value) {
		v.fail(path, "%s contains control characters", field)
	}
}

func (v *validator) name(path Path, what, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(path, "%s name is empty", what)
		return
	}
	v.text(path, what+" name", value)
}

func (v *validator) dataset(d *Dataset) {
	path := Path{Dataset: d.Name}
	v.name(path, "dataset", d.Name)
	v.text(path, "title", d.Title)
	v.text(path, "description", d.Description)

	models := make(map[string]bool)
	for _, r := range d.ResourceList() {
		for _, m := range r.ModelList() {
			models[m.Name] = true
		}
	}
	for _, r := range d.ResourceList() {
		v.resource(d, r, models)
	}
}

func (v *validator) resource(d *Dataset, r *Resource, models map[string]bool) {
	path := Path{Dataset: d.Name, Resource: r.Name}
	v.name(path, "resource", r.Name)
	v.text(path, "source", r.Source)
	v.text(path, "title", r.Title)
	v.text(path, "description", r.Description)

	sources := make(map[string]string)
	for _, m := range r.ModelList() {
		mp := Path{Dataset: d.Name, Resource: r.Name, Model: m.Name}
		if m.Source != "" {
			if other, dup := sources[m.Source]; dup {
				v.fail(mp, "source entity %q already used by model %s", m.Source, other)
			} else {
				sources[m.Source] = m.Name
			}
		}
		if m.Base != "" && !models[m.Base] {
			v.fail(mp, "base model %q not found", m.Base)
		}
		v.model(mp, m)
	}
}

func (v *validator) model(path Path, m *Model) {
	v.name(path, "model", m.Name)
	v.text(path, "source", m.Source)
	v.text(path, "title", m.Title)
	v.text(path, "description", m.Description)
	if !modelKinds[m.Kind] {
		v.fail(path, "invalid model kind %q", m.Kind)
	}
	if _, ok := ParseStatus(string(m.Status)); !ok {
		v.fail(path, "invalid status %q", m.Status)
	}
	for _, pk := range m.PrimaryKey {
		if _, ok := m.Property(pk); !ok {
			v.fail(path, "primary key property %q not found", pk)
		}
	}
	for _, p := range m.PropertyList() {
		pp := path
		pp.Property = p.Name
		v.property(pp, p)
	}
}

func (v *validator) property(path Path, p *Property) {
	v.name(path, "property", p.Name)
	v.text(path, "source", p.Source)
	v.text(path, "native type", p.NativeType)
	if strings.Contains(p.NativeType, "::") {
		v.fail(path, "native type contains %q", "::")
	}
	v.text(path, "title", p.Title)
	v.text(path, "description", p.Description)

	if _, ok := core.ParseType(string(p.Type)); !ok {
		v.fail(path, "invalid type %q", p.Type)
	}
	if p.Type == core.TypeReference && (p.Ref == nil || p.Ref.Model == "") {
		v.fail(path, "reference without target model")
	}
	if p.Ref != nil {
		v.text(path, "ref", p.Ref.String())
	}
	if _, ok := ParseAccess(string(p.Access)); !ok {
		v.fail(path, "invalid access %q", p.Access)
	}
	if _, ok := ParseStatus(string(p.Status)); !ok {
		v.fail(path, "invalid status %q", p.Status)
	}
	if p.Level < 0 || p.Level > MaxLevel {
		v.fail(path, "level %d out of range 0..%d", p.Level, MaxLevel)
	}
}
