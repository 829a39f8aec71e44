package tabular

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/manifest"
)

// Read parses a tabular manifest. Rows that break an invariant are rejected
// with a diagnostic naming the row number (the header is row 1) and the
// node path; accepted rows still form the returned manifest. Any rejection,
// or a validation error of the assembled manifest, makes the error match
// core.ErrValidation.
//
// Reference handles are not bound; call ResolveReferences on the result.
func Read(r io.Reader) (*manifest.Manifest, core.Diagnostics, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	return Unmarshal(data)
}

// Unmarshal is Read from a byte slice.
func Unmarshal(data []byte) (*manifest.Manifest, core.Diagnostics, error) {
	m := manifest.New()
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil, nil
	}
	var rows []*Row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}

	b := &builder{m: m}
	for i, row := range rows {
		b.add(i+2, row)
	}
	diags := append(b.diags, m.Validate()...)
	if errs := diags.Errors(); len(errs) > 0 {
		return m, diags, core.Wrap(core.KindValidation, false,
			fmt.Errorf("manifest has %d invalid rows, first: %s", len(errs), errs[0]))
	}
	return m, diags, nil
}

type builder struct {
	m     *manifest.Manifest
	diags core.Diagnostics
}

func (b *builder) reject(line int, path manifest.Path, format string, args ...any) {
	b.diags = append(b.diags, core.Errorf(core.KindValidation, path.String(),
		"row %d: %s", line, fmt.Sprintf(format, args...)))
}

func (b *builder) add(line int, row *Row) {
	path := manifest.Path{Dataset: row.Dataset, Resource: row.Resource, Model: row.Model, Property: row.Property}
	for _, f := range row.fields() {
		if manifest.HasControl(*f) {
			b.reject(line, path, "control characters")
			return
		}
	}

	kind := row.Kind()
	switch {
	case kind == KindEmpty:
		return
	case row.Dataset == "":
		b.reject(line, path, "%s row without dataset", kind)
		return
	case kind >= KindModel && row.Resource == "":
		b.reject(line, path, "%s row without resource", kind)
		return
	case kind == KindProperty && row.Model == "":
		b.reject(line, path, "property row without model")
		return
	}

	var err error
	switch kind {
	case KindDataset:
		err = b.dataset(row)
	case KindResource:
		err = b.resource(row)
	case KindModel:
		err = b.model(row)
	case KindProperty:
		err = b.property(row)
	}
	if err != nil {
		b.reject(line, path, "%v", err)
	}
}

func (b *builder) dataset(row *Row) error {
	if row.Level != "" && row.Level != strconv.Itoa(manifest.LevelStub) {
		return fmt.Errorf("invalid dataset level %q", row.Level)
	}
	if _, exists := b.m.Dataset(row.Dataset); exists {
		return fmt.Errorf("duplicate dataset")
	}
	_, err := b.m.AddDataset(row.Dataset, row.Title, row.Description)
	return err
}

func (b *builder) resource(row *Row) error {
	if _, ok := b.m.Dataset(row.Dataset); !ok {
		return fmt.Errorf("dataset %q is not declared", row.Dataset)
	}
	return b.m.Update(row.Dataset, func(d *manifest.Dataset) error {
		if _, exists := d.Resource(row.Resource); exists {
			return fmt.Errorf("duplicate resource")
		}
		r := manifest.NewResource(row.Resource, row.Type, row.Source)
		r.Title, r.Description = row.Title, row.Description
		_, err := d.AddResource(r)
		return err
	})
}

func (b *builder) model(row *Row) error {
	status, ok := manifest.ParseStatus(row.Status)
	if !ok {
		return fmt.Errorf("invalid status %q", row.Status)
	}
	return b.withResource(row, func(r *manifest.Resource) error {
		if _, exists := r.Model(row.Model); exists {
			return fmt.Errorf("duplicate model")
		}
		m := manifest.NewModel(row.Model)
		m.Base = row.Base
		m.Kind = row.Type
		m.Source = row.Source
		m.Status = status
		m.Title, m.Description = row.Title, row.Description
		pk, err := splitList(row.Ref)
		if err != nil {
			return fmt.Errorf("primary key: %w", err)
		}
		m.PrimaryKey = pk
		r.Models.Set(m.Name, m)
		return nil
	})
}

func (b *builder) property(row *Row) error {
	p, err := parseProperty(row)
	if err != nil {
		return err
	}
	return b.withResource(row, func(r *manifest.Resource) error {
		m, ok := r.Model(row.Model)
		if !ok {
			return fmt.Errorf("model %q is not declared", row.Model)
		}
		return m.AddProperty(p)
	})
}

func (b *builder) withResource(row *Row, fn func(*manifest.Resource) error) error {
	if _, ok := b.m.Dataset(row.Dataset); !ok {
		return fmt.Errorf("dataset %q is not declared", row.Dataset)
	}
	return b.m.Update(row.Dataset, func(d *manifest.Dataset) error {
		r, ok := d.Resource(row.Resource)
		if !ok {
			return fmt.Errorf("resource %q is not declared", row.Resource)
		}
		return fn(r)
	})
}

func parseProperty(row *Row) (*manifest.Property, error) {
	p := &manifest.Property{Name: row.Property, Type: core.TypeUnknown}

	if fields := strings.Fields(row.Type); len(fields) > 0 {
		t, ok := core.ParseType(fields[0])
		if !ok {
			return nil, fmt.Errorf("invalid type %q", fields[0])
		}
		p.Type = t
		for _, mod := range fields[1:] {
			if mod != modRequired {
				return nil, fmt.Errorf("unknown type modifier %q", mod)
			}
			p.Required = true
		}
	}

	if row.Ref != "" {
		ref, err := parseRef(row.Ref)
		if err != nil {
			return nil, err
		}
		p.Ref = ref
	} else if p.Type == core.TypeReference {
		return nil, fmt.Errorf("reference without ref")
	}

	p.Source, p.NativeType = splitSource(row.Source)

	if row.Level != "" {
		level, err := strconv.Atoi(row.Level)
		if err != nil || level < 0 || level > manifest.MaxLevel {
			return nil, fmt.Errorf("invalid level %q", row.Level)
		}
		p.Level = level
	}

	var ok bool
	if p.Access, ok = manifest.ParseAccess(row.Access); !ok {
		return nil, fmt.Errorf("invalid access %q", row.Access)
	}
	if p.Status, ok = manifest.ParseStatus(row.Status); !ok {
		return nil, fmt.Errorf("invalid status %q", row.Status)
	}
	p.Title, p.Description = row.Title, row.Description
	return p, nil
}

// parseRef parses "model" or "model[property]".
func parseRef(s string) (*manifest.Ref, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if strings.ContainsRune(s, ']') {
			return nil, fmt.Errorf("malformed ref %q", s)
		}
		return &manifest.Ref{Model: s}, nil
	}
	if !strings.HasSuffix(s, "]") || open == 0 {
		return nil, fmt.Errorf("malformed ref %q", s)
	}
	prop := s[open+1 : len(s)-1]
	if prop == "" || strings.ContainsAny(prop, "[]") {
		return nil, fmt.Errorf("malformed ref %q", s)
	}
	return &manifest.Ref{Model: s[:open], Property: prop}, nil
}
