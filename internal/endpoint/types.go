package endpoint

import "strings"

// Record represents a single raw record as key-value pairs.
type Record = map[string]any

// Iterator provides streaming access to values.
type Iterator[T any] interface {
	// Next advances to the next value. Returns false when done or on error.
	Next() bool

	// Value returns the current value. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// --- Entity Types ---

const (
	KindTable      = "table"
	KindView       = "view"
	KindCollection = "collection"
	KindDataset    = "dataset"
)

// Entity describes one table, view, collection or SAS dataset.
type Entity struct {
	Schema string // schema, library or database; may be empty
	Name   string
	Kind   string // KindTable, KindView, KindCollection, KindDataset

	// Default is true when Schema is the connection's default schema, so
	// the entity can be referred to by its bare name.
	Default bool

	Title string
}

// QualifiedName returns "schema.name", or the bare name without a schema.
func (e *Entity) QualifiedName() string {
	if e.Schema == "" {
		return e.Name
	}
	return e.Schema + "." + e.Name
}

// ModelName returns the canonical model name for the entity: the bare name
// in the default schema, the qualified name elsewhere.
func (e *Entity) ModelName() string {
	if e.Default || e.Schema == "" {
		return e.Name
	}
	return e.QualifiedName()
}

// --- Field Types ---

// ForeignKey is a statically declared reference to another entity's field.
type ForeignKey struct {
	Entity string // qualified name of the target entity
	Field  string
}

// Observation counts how often a native type was seen for an inferred field.
type Observation struct {
	NativeType string
	Count      int
}

// Field describes one column or document field.
type Field struct {
	Name       string
	NativeType string
	Nullable   bool
	PrimaryKey bool
	ForeignKey *ForeignKey
	Position   int
	Comment    string

	// Observations is set by schema-less backends: every native type seen
	// across the sampled documents, most frequent first.
	Observations []Observation
	Sampled      int
}

// ObservedTypes returns the distinct native types in Observations.
func (f *Field) ObservedTypes() []string {
	out := make([]string, 0, len(f.Observations))
	for _, o := range f.Observations {
		out = append(out, o.NativeType)
	}
	return out
}

// JoinNative renders several native types as one native type string.
func JoinNative(types []string) string {
	return strings.Join(types, "|")
}

// --- Iterators ---

// SliceIterator iterates over an in-memory slice.
type SliceIterator[T any] struct {
	items []T
	index int
	done  bool
	err   error
}

// NewSliceIterator wraps items. A non-nil err is reported after the items
// are exhausted, mimicking a stream that fails part-way.
func NewSliceIterator[T any](items []T, err error) *SliceIterator[T] {
	return &SliceIterator[T]{items: items, index: -1, err: err}
}

func (it *SliceIterator[T]) Next() bool {
	if it.index < len(it.items)-1 {
		it.index++
		return true
	}
	it.done = true
	return false
}

func (it *SliceIterator[T]) Value() T {
	if it.index >= 0 && it.index < len(it.items) {
		return it.items[it.index]
	}
	var zero T
	return zero
}

func (it *SliceIterator[T]) Err() error {
	if it.done {
		return it.err
	}
	return nil
}

func (it *SliceIterator[T]) Close() error {
	it.items = nil
	it.index = -1
	it.done = true
	return nil
}
