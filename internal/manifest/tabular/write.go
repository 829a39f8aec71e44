package tabular

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/manifest"
)

// WriteOptions controls Write.
type WriteOptions struct {
	// Force writes manifests that fail validation.
	Force bool
}

// Write validates m and writes it as CSV. A manifest with validation errors
// is refused with an error matching core.ErrValidation unless forced; the
// validation diagnostics are returned either way.
func Write(w io.Writer, m *manifest.Manifest, opts WriteOptions) (core.Diagnostics, error) {
	diags := m.Validate()
	if errs := diags.Errors(); len(errs) > 0 && !opts.Force {
		return diags, core.Wrap(core.KindValidation, false,
			fmt.Errorf("manifest has %d validation errors, first: %s", len(errs), errs[0]))
	}
	if err := gocsv.Marshal(Rows(m), w); err != nil {
		return diags, fmt.Errorf("write manifest: %w", err)
	}
	return diags, nil
}

// Marshal is Write into a byte slice.
func Marshal(m *manifest.Manifest, opts WriteOptions) ([]byte, core.Diagnostics, error) {
	var buf bytes.Buffer
	diags, err := Write(&buf, m, opts)
	if err != nil {
		return nil, diags, err
	}
	return buf.Bytes(), diags, nil
}

// Rows flattens m in manifest order. Control characters become spaces.
func Rows(m *manifest.Manifest) []*Row {
	var rows []*Row
	m.Walk(func(d *manifest.Dataset) {
		rows = append(rows, datasetRow(d))
		for _, r := range d.ResourceList() {
			rows = append(rows, resourceRow(d, r))
			for _, model := range r.ModelList() {
				rows = append(rows, modelRow(d, r, model))
				for _, p := range model.PropertyList() {
					rows = append(rows, propertyRow(d, r, model, p))
				}
			}
		}
	})
	for _, row := range rows {
		row.sanitize()
	}
	return rows
}

func datasetRow(d *manifest.Dataset) *Row {
	row := &Row{Dataset: d.Name, Title: d.Title, Description: d.Description}
	if d.Resources.Len() == 0 {
		row.Level = strconv.Itoa(manifest.LevelStub)
	}
	return row
}

func resourceRow(d *manifest.Dataset, r *manifest.Resource) *Row {
	return &Row{
		Dataset:     d.Name,
		Resource:    r.Name,
		Type:        r.Backend,
		Source:      r.Source,
		Title:       r.Title,
		Description: r.Description,
	}
}

func modelRow(d *manifest.Dataset, r *manifest.Resource, m *manifest.Model) *Row {
	return &Row{
		Dataset:     d.Name,
		Resource:    r.Name,
		Base:        m.Base,
		Model:       m.Name,
		Type:        m.Kind,
		Ref:         joinList(m.PrimaryKey),
		Source:      m.Source,
		Status:      string(m.Status),
		Title:       m.Title,
		Description: m.Description,
	}
}

func propertyRow(d *manifest.Dataset, r *manifest.Resource, m *manifest.Model, p *manifest.Property) *Row {
	typ := string(p.Type)
	if p.Required {
		typ += " " + modRequired
	}
	return &Row{
		Dataset:     d.Name,
		Resource:    r.Name,
		Model:       m.Name,
		Property:    p.Name,
		Type:        typ,
		Ref:         p.Ref.String(),
		Source:      joinSource(p.Source, p.NativeType),
		Level:       strconv.Itoa(p.Level),
		Access:      string(p.Access),
		Status:      string(p.Status),
		Title:       p.Title,
		Description: p.Description,
	}
}
