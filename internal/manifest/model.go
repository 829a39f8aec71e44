// Package manifest holds the canonical, backend-independent description of
// inspected data sources: Dataset → Resource → Model → Property, each level
// kept in insertion order.
//
// Nodes are identified by Path. Inspections merge fresh models into an
// existing manifest (MergeModel); nothing observed earlier is deleted, only
// marked stale, until an explicit Prune. References between models are
// stored as Path handles, so cycles need no special treatment.
//
// Concurrency: each Dataset has its own lock. Mutations go through
// Manifest.Update, reads through Manifest.View.
package manifest

import (
	"fmt"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/04d4/spinta/internal/core"
)

// Access levels of a property.
type Access string

const (
	AccessUnset     Access = ""
	AccessPrivate   Access = "private"
	AccessProtected Access = "protected"
	AccessPublic    Access = "public"
	AccessOpen      Access = "open"
)

// ParseAccess validates an access level.
func ParseAccess(s string) (Access, bool) {
	switch a := Access(strings.TrimSpace(s)); a {
	case AccessUnset, AccessPrivate, AccessProtected, AccessPublic, AccessOpen:
		return a, true
	}
	return AccessUnset, false
}

// Status of a model or property.
type Status string

const (
	StatusActive Status = ""
	StatusStale  Status = "stale"
)

// ParseStatus validates a status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusActive, StatusStale:
		return st, true
	}
	return StatusActive, false
}

// Model kinds, matching connector entity kinds.
var modelKinds = map[string]bool{
	"":           true,
	"table":      true,
	"view":       true,
	"collection": true,
	"dataset":    true,
}

// MaxLevel is the highest maturity level a property may carry.
const MaxLevel = 5

// Path identifies a node. Trailing fields are empty for coarser nodes.
type Path struct {
	Dataset  string
	Resource string
	Model    string
	Property string
}

// String renders "dataset/resource/model.property", omitting empty parts.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Dataset)
	if p.Resource != "" {
		b.WriteString("/" + p.Resource)
	}
	if p.Model != "" {
		b.WriteString("/" + p.Model)
	}
	if p.Property != "" {
		b.WriteString("." + p.Property)
	}
	return b.String()
}

// ModelPath strips the property.
func (p Path) ModelPath() Path {
	p.Property = ""
	return p
}

// Ref is a declared reference to another model's property. Model may be
// a model name, a source entity name or "dataset/model".
type Ref struct {
	Model    string
	Property string
}

func (r *Ref) String() string {
	if r == nil {
		return ""
	}
	if r.Property == "" {
		return r.Model
	}
	return fmt.Sprintf("%s[%s]", r.Model, r.Property)
}

// Property is one field of a model.
type Property struct {
	Name        string
	Type        core.Type
	Required    bool
	Source      string // native field name
	NativeType  string
	Ref         *Ref
	Level       int
	Access      Access
	Status      Status
	Title       string
	Description string

	// Target is set by ResolveReferences when Ref names an existing property.
	Target *Path
}

// Model is one table, view or collection.
type Model struct {
	Name        string
	Source      string // qualified native entity name
	Kind        string
	Base        string
	PrimaryKey  []string
	Status      Status
	Title       string
	Description string

	Properties *orderedmap.OrderedMap[string, *Property]
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, Properties: orderedmap.New[string, *Property]()}
}

// AddProperty appends p. Property names are unique within a model.
func (m *Model) AddProperty(p *Property) error {
	if _, exists := m.Properties.Get(p.Name); exists {
		return fmt.Errorf("model %s: duplicate property %q", m.Name, p.Name)
	}
	m.Properties.Set(p.Name, p)
	return nil
}

// Property returns the named property.
func (m *Model) Property(name string) (*Property, bool) {
	return m.Properties.Get(name)
}

// PropertyList returns properties in order.
func (m *Model) PropertyList() []*Property {
	out := make([]*Property, 0, m.Properties.Len())
	for pair := m.Properties.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (m *Model) isPrimaryKey(name string) bool {
	for _, pk := range m.PrimaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// Resource is one backend connection within a dataset.
type Resource struct {
	Name        string
	Backend     string // backend kind, e.g. "sql/postgres"
	Source      string // connection descriptor, credentials redacted
	Title       string
	Description string

	Models *orderedmap.OrderedMap[string, *Model]
}

// NewResource creates an empty resource.
func NewResource(name, backend, source string) *Resource {
	return &Resource{
		Name:    name,
		Backend: backend,
		Source:  source,
		Models:  orderedmap.New[string, *Model](),
	}
}

// Model returns the named model.
func (r *Resource) Model(name string) (*Model, bool) {
	return r.Models.Get(name)
}

// ModelList returns models in order.
func (r *Resource) ModelList() []*Model {
	out := make([]*Model, 0, r.Models.Len())
	for pair := r.Models.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Dataset is a named group of resources.
type Dataset struct {
	Name        string
	Title       string
	Description string

	Resources *orderedmap.OrderedMap[string, *Resource]

	mu sync.RWMutex
}

// Resource returns the named resource.
func (d *Dataset) Resource(name string) (*Resource, bool) {
	return d.Resources.Get(name)
}

// ResourceList returns resources in order.
func (d *Dataset) ResourceList() []*Resource {
	out := make([]*Resource, 0, d.Resources.Len())
	for pair := d.Resources.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// AddResource inserts r, or updates backend, source and title of an
// existing resource with the same name. It returns the stored resource.
func (d *Dataset) AddResource(r *Resource) (*Resource, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("dataset %s: resource name is required", d.Name)
	}
	prior, ok := d.Resources.Get(r.Name)
	if !ok {
		if r.Models == nil {
			r.Models = orderedmap.New[string, *Model]()
		}
		d.Resources.Set(r.Name, r)
		return r, nil
	}
	prior.Backend = keep(prior.Backend, r.Backend)
	prior.Source = keep(prior.Source, r.Source)
	prior.Title = keep(prior.Title, r.Title)
	prior.Description = keep(prior.Description, r.Description)
	return prior, nil
}

// keep returns fresh unless it is empty.
func keep(prior, fresh string) string {
	if fresh != "" {
		return fresh
	}
	return prior
}
