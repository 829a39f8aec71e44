// Package tabular reads and writes manifests as flat CSV tables.
//
// Each row carries its full path (dataset, resource, model, property); the
// deepest non-empty path column decides what the row describes. The meaning
// of the type, ref and source columns depends on that row kind:
//
//	row        type                 ref              source
//	dataset    -                    -                -
//	resource   backend kind         -                connection descriptor
//	model      entity kind          primary key      qualified entity name
//	property   type [required]      model[property]  field::native type
//
// Primary key names are separated by ", "; a name holding a comma, a double
// quote or outer spaces is written in double quotes with quotes doubled.
// The "::" separator is always written when the field name contains it.
package tabular

import (
	"fmt"
	"strings"
	"unicode"
)

// Columns in file order.
var Columns = []string{
	"dataset", "resource", "base", "model", "property", "type", "ref",
	"source", "level", "access", "status", "title", "description",
}

// Row is one line of a tabular manifest.
type Row struct {
	Dataset     string `csv:"dataset"`
	Resource    string `csv:"resource"`
	Base        string `csv:"base"`
	Model       string `csv:"model"`
	Property    string `csv:"property"`
	Type        string `csv:"type"`
	Ref         string `csv:"ref"`
	Source      string `csv:"source"`
	Level       string `csv:"level"`
	Access      string `csv:"access"`
	Status      string `csv:"status"`
	Title       string `csv:"title"`
	Description string `csv:"description"`
}

// RowKind is what a row describes.
type RowKind int

const (
	KindEmpty RowKind = iota
	KindDataset
	KindResource
	KindModel
	KindProperty
)

func (k RowKind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindResource:
		return "resource"
	case KindModel:
		return "model"
	case KindProperty:
		return "property"
	}
	return "empty"
}

// Kind returns the deepest non-empty path column.
func (r *Row) Kind() RowKind {
	switch {
	case r.Property != "":
		return KindProperty
	case r.Model != "":
		return KindModel
	case r.Resource != "":
		return KindResource
	case r.Dataset != "":
		return KindDataset
	}
	return KindEmpty
}

func (r *Row) fields() []*string {
	return []*string{
		&r.Dataset, &r.Resource, &r.Base, &r.Model, &r.Property, &r.Type, &r.Ref,
		&r.Source, &r.Level, &r.Access, &r.Status, &r.Title, &r.Description,
	}
}

func (r *Row) sanitize() {
	for _, f := range r.fields() {
		*f = sanitize(*f)
	}
}

// sanitize replaces control characters with spaces.
func sanitize(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

const (
	modRequired = "required"
	sourceSep   = "::"
)

func joinList(items []string) string {
	out := make([]string, len(items))
	for i, item := range items {
		if item == "" || item != strings.TrimSpace(item) || strings.ContainsAny(item, `,"`) {
			item = `"` + strings.ReplaceAll(item, `"`, `""`) + `"`
		}
		out[i] = item
	}
	return strings.Join(out, ", ")
}

func splitList(s string) ([]string, error) {
	var out []string
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return out, nil
		}
		var item string
		if s[0] == '"' {
			var b strings.Builder
			i := 1
			for {
				j := strings.IndexByte(s[i:], '"')
				if j < 0 {
					return nil, fmt.Errorf("unterminated quote in %q", s)
				}
				b.WriteString(s[i : i+j])
				i += j + 1
				if i < len(s) && s[i] == '"' {
					b.WriteByte('"')
					i++
					continue
				}
				break
			}
			item, s = b.String(), strings.TrimLeft(s[i:], " ")
			if s != "" && s[0] != ',' {
				return nil, fmt.Errorf("unexpected text after quoted name: %q", s)
			}
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			item, s = strings.TrimSpace(s[:end]), s[end:]
			if item == "" {
				s = strings.TrimPrefix(s, ",")
				continue
			}
		}
		out = append(out, item)
		s = strings.TrimPrefix(s, ",")
	}
}

func joinSource(field, native string) string {
	if native == "" && !strings.Contains(field, sourceSep) {
		return field
	}
	return field + sourceSep + native
}

func splitSource(s string) (field, native string) {
	if i := strings.LastIndex(s, sourceSep); i >= 0 {
		return s[:i], s[i+len(sourceSep):]
	}
	return s, ""
}
