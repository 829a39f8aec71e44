package sas

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/typemap"
)

// Format is a parsed SAS display format such as COMMA12.2 or DATE9.
type Format struct {
	Name     string
	Width    int // 0 when absent
	Decimals int // 0 when absent
}

var formatRe = regexp.MustCompile(`^([A-Z]+\$?)(\d+)?(?:\.(\d+)?)?\.?$`)

// ParseFormat splits a SAS format into name, width and decimals. Strings
// that do not follow NAME[width[.decimals]] keep their full text as name.
func ParseFormat(s string) Format {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Format{}
	}
	m := formatRe.FindStringSubmatch(s)
	if m == nil {
		return Format{Name: strings.TrimRight(s, ".")}
	}
	f := Format{Name: m[1]}
	f.Width, _ = strconv.Atoi(m[2])
	f.Decimals, _ = strconv.Atoi(m[3])
	return f
}

type family struct {
	Name         string    `yaml:"name"`
	Match        string    `yaml:"match"`
	Type         core.Type `yaml:"type"`
	DecimalsType core.Type `yaml:"decimals_type"`
	Names        []string  `yaml:"names"`
}

func (f *family) matches(name string) bool {
	for _, n := range f.Names {
		if f.Match == "prefix" && strings.HasPrefix(name, n) {
			return true
		}
		if f.Match == "exact" && name == n {
			return true
		}
	}
	return false
}

// FormatMapper maps SAS native types to canonical types. Native types are
// "char(<len>)", "num" or "num:<FORMAT>"; numeric columns are refined by
// the first matching format family.
type FormatMapper struct {
	base     *typemap.Table
	families []family
	fallback core.Type
}

var _ typemap.Versioned = (*FormatMapper)(nil)

// ParseFormatMapper loads a SAS type table with its format families.
func ParseFormatMapper(data []byte) (*FormatMapper, error) {
	base, err := typemap.Parse(data)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Formats struct {
			Default  core.Type `yaml:"default"`
			Families []family `yaml:"families"`
		} `yaml:"formats"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode format families: %w", err)
	}

	check := func(what string, t core.Type) error {
		if _, ok := core.ParseType(string(t)); !ok {
			return fmt.Errorf("type table %s: %s maps to non-canonical type %q", base.Backend, what, t)
		}
		return nil
	}
	fallback := doc.Formats.Default
	if fallback == "" {
		fallback = core.TypeNumber
	}
	if err := check("default format", fallback); err != nil {
		return nil, err
	}
	for i := range doc.Formats.Families {
		f := &doc.Formats.Families[i]
		if f.Match != "prefix" && f.Match != "exact" {
			return nil, fmt.Errorf("type table %s: family %s: match must be prefix or exact", base.Backend, f.Name)
		}
		if err := check("family "+f.Name, f.Type); err != nil {
			return nil, err
		}
		if f.DecimalsType != "" {
			if err := check("family "+f.Name, f.DecimalsType); err != nil {
				return nil, err
			}
		}
		for j, n := range f.Names {
			f.Names[j] = strings.ToUpper(n)
		}
	}
	return &FormatMapper{base: base, families: doc.Formats.Families, fallback: fallback}, nil
}

// Map implements typemap.Mapper.
func (m *FormatMapper) Map(native string) (core.Type, bool) {
	storage, format, _ := strings.Cut(strings.TrimSpace(native), ":")
	t, ok := m.base.Map(storage)
	if !ok {
		return core.TypeUnknown, false
	}
	if t != core.TypeNumber {
		return t, true
	}
	return m.MapFormat(format), true
}

// MapFormat classifies a numeric column by its display format. Unrecognised
// or missing formats fall back to the default numeric type.
func (m *FormatMapper) MapFormat(format string) core.Type {
	f := ParseFormat(format)
	if f.Name == "" {
		return m.fallback
	}
	for i := range m.families {
		fam := &m.families[i]
		if !fam.matches(f.Name) {
			continue
		}
		if fam.DecimalsType != "" && f.Decimals > 0 {
			return fam.DecimalsType
		}
		return fam.Type
	}
	return m.fallback
}

// TableVersion implements typemap.Versioned.
func (m *FormatMapper) TableVersion() int { return m.base.Version }

// NativeType renders a dictionary.columns row as a native type string.
func NativeType(storage string, length int, format string) string {
	storage = strings.ToLower(strings.TrimSpace(storage))
	format = strings.ToUpper(strings.TrimSpace(format))
	switch {
	case storage == "char" && length > 0:
		return fmt.Sprintf("char(%d)", length)
	case storage == "num" && format != "":
		return "num:" + format
	}
	return storage
}
