// Package typemap maps native backend column/field types to canonical types.
//
// Each backend registers its own Mapper under a backend kind (for example
// "sql/postgres"). Most backends describe their mapping as a YAML Table
// embedded in the connector package; backends whose native types need
// parsing (SAS formats) register a custom Mapper instead. Lookups are total:
// anything unmapped yields core.TypeUnknown with ok=false.
package typemap

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/04d4/spinta/internal/core"
)

// Mapper maps a native type string to a canonical type. ok is false when the
// native type is not recognised; the returned type is then TypeUnknown.
type Mapper interface {
	Map(native string) (t core.Type, ok bool)
}

// Versioned mappers report the version of their mapping table.
type Versioned interface {
	TableVersion() int
}

// Table is a declarative mapping table loaded from YAML.
type Table struct {
	Backend string               `yaml:"backend"`
	Version int                  `yaml:"version"`
	Types   map[string]core.Type `yaml:"types"`
	Aliases map[string]string    `yaml:"aliases"`

	// ArrayPrefix marks native names that denote arrays of another type,
	// e.g. PostgreSQL reports int4[] columns with udt_name "_int4".
	ArrayPrefix string `yaml:"array_prefix"`
}

// Parse decodes a YAML table and checks that every target is canonical.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode type table: %w", err)
	}
	if t.Backend == "" {
		return nil, fmt.Errorf("type table: backend is required")
	}
	types := make(map[string]core.Type, len(t.Types))
	for native, canonical := range t.Types {
		if _, ok := core.ParseType(string(canonical)); !ok {
			return nil, fmt.Errorf("type table %s: %q maps to non-canonical type %q", t.Backend, native, canonical)
		}
		types[Normalize(native)] = canonical
	}
	t.Types = types
	aliases := make(map[string]string, len(t.Aliases))
	for alias, target := range t.Aliases {
		target = Normalize(target)
		if _, ok := types[target]; !ok {
			return nil, fmt.Errorf("type table %s: alias %q points to unmapped type %q", t.Backend, alias, target)
		}
		aliases[Normalize(alias)] = target
	}
	t.Aliases = aliases
	return &t, nil
}

// MustParse is Parse for embedded tables.
func MustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Map implements Mapper.
func (t *Table) Map(native string) (core.Type, bool) {
	n := Normalize(native)
	if n == "" {
		return core.TypeUnknown, false
	}
	if strings.HasSuffix(n, "[]") {
		return core.TypeArray, true
	}
	if ct, ok := t.Types[n]; ok {
		return ct, true
	}
	if target, ok := t.Aliases[n]; ok {
		return t.Types[target], true
	}
	if t.ArrayPrefix != "" && strings.HasPrefix(n, t.ArrayPrefix) && len(n) > len(t.ArrayPrefix) {
		return core.TypeArray, true
	}
	return core.TypeUnknown, false
}

// TableVersion implements Versioned.
func (t *Table) TableVersion() int { return t.Version }

var (
	paramsRe = regexp.MustCompile(`\([^)]*\)`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases a native type name, drops length/precision
// parameters and collapses whitespace: "CHARACTER VARYING(255)" becomes
// "character varying".
func Normalize(native string) string {
	n := strings.ToLower(strings.TrimSpace(native))
	n = paramsRe.ReplaceAllString(n, "")
	n = spaceRe.ReplaceAllString(n, " ")
	return strings.TrimSpace(strings.ReplaceAll(n, " []", "[]"))
}

// Reconcile combines the canonical types observed for one field. Equal types
// reconcile to themselves, integer and number widen to number, date and
// datetime widen to datetime. Unknown entries are ignored. Anything else is a conflict and yields TypeUnknown.
func Reconcile(types ...core.Type) (core.Type, bool) {
	seen := map[core.Type]bool{}
	for _, t := range types {
		if t.IsKnown() {
			seen[t] = true
		}
	}
	switch len(seen) {
	case 0:
		return core.TypeUnknown, false
	case 1:
		for t := range seen {
			return t, false
		}
	case 2:
		if seen[core.TypeInteger] && seen[core.TypeNumber] {
			return core.TypeNumber, false
		}
		if seen[core.TypeDate] && seen[core.TypeDatetime] {
			return core.TypeDatetime, false
		}
	}
	return core.TypeUnknown, true
}

// Registry holds mappers indexed by backend kind.
type Registry struct {
	mappers map[string]Mapper
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register adds a mapper for kind.
// Panics if the kind is already registered.
func (r *Registry) Register(kind string, m Mapper) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mappers[kind]; exists {
		panic(fmt.Sprintf("type table already registered: %s", kind))
	}
	r.mappers[kind] = m
}

// Get returns the mapper for kind.
func (r *Registry) Get(kind string) (Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappers[kind]
	return m, ok
}

// Map looks up native in the table registered for kind.
func (r *Registry) Map(kind, native string) (core.Type, bool) {
	m, ok := r.Get(kind)
	if !ok {
		return core.TypeUnknown, false
	}
	t, ok := m.Map(native)
	if !ok || !t.IsKnown() {
		return core.TypeUnknown, false
	}
	return t, true
}

// Version returns the table version registered for kind, 0 if unversioned.
func (r *Registry) Version(kind string) int {
	m, ok := r.Get(kind)
	if !ok {
		return 0
	}
	if v, ok := m.(Versioned); ok {
		return v.TableVersion()
	}
	return 0
}

// Kinds returns registered backend kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.mappers))
	for k := range r.mappers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var defaultRegistry = NewRegistry()

// Default returns the global registry used by connector packages.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a mapper to the default registry.
func Register(kind string, m Mapper) {
	defaultRegistry.Register(kind, m)
}
