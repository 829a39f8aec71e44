package manifest

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/04d4/spinta/internal/core"
)

// Manifest is the root of the canonical model.
type Manifest struct {
	mu       sync.RWMutex // guards datasets, not their contents
	datasets *orderedmap.OrderedMap[string, *Dataset]
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{datasets: orderedmap.New[string, *Dataset]()}
}

// AddDataset inserts a dataset, or updates the title and description of an
// existing one.
func (m *Manifest) AddDataset(name, title, description string) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.datasets.Get(name); ok {
		d.mu.Lock()
		d.Title = keep(d.Title, title)
		d.Description = keep(d.Description, description)
		d.mu.Unlock()
		return d, nil
	}
	d := &Dataset{
		Name:        name,
		Title:       title,
		Description: description,
		Resources:   orderedmap.New[string, *Resource](),
	}
	m.datasets.Set(name, d)
	return d, nil
}

// Dataset returns the named dataset. Its contents must be accessed through
// Update or View.
func (m *Manifest) Dataset(name string) (*Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.datasets.Get(name)
}

// Datasets returns datasets in insertion order.
func (m *Manifest) Datasets() []*Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Dataset, 0, m.datasets.Len())
	for pair := m.datasets.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Update runs fn holding the dataset's write lock.
func (m *Manifest) Update(dataset string, fn func(*Dataset) error) error {
	d, ok := m.Dataset(dataset)
	if !ok {
		return fmt.Errorf("dataset %q not found", dataset)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d)
}

// View runs fn holding the dataset's read lock.
func (m *Manifest) View(dataset string, fn func(*Dataset)) error {
	d, ok := m.Dataset(dataset)
	if !ok {
		return fmt.Errorf("dataset %q not found", dataset)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d)
	return nil
}

// AddResource adds r to the dataset, creating the dataset when missing.
func (m *Manifest) AddResource(dataset string, r *Resource) (*Resource, error) {
	if _, err := m.AddDataset(dataset, "", ""); err != nil {
		return nil, err
	}
	var stored *Resource
	err := m.Update(dataset, func(d *Dataset) error {
		var err error
		stored, err = d.AddResource(r)
		return err
	})
	return stored, err
}

// AddOrUpdateModel merges fresh into the model at path (dataset, resource
// and model name). The resource must exist.
func (m *Manifest) AddOrUpdateModel(path Path, fresh *Model) (*Model, core.Diagnostics, error) {
	var (
		merged *Model
		diags  core.Diagnostics
	)
	err := m.Update(path.Dataset, func(d *Dataset) error {
		var err error
		merged, diags, err = d.MergeModel(path.Resource, fresh)
		return err
	})
	return merged, diags, err
}

// lockAll takes every dataset's write lock in insertion order and returns
// the datasets plus a release func.
func (m *Manifest) lockAll() ([]*Dataset, func()) {
	ds := m.Datasets()
	for _, d := range ds {
		d.mu.Lock()
	}
	return ds, func() {
		for i := len(ds) - 1; i >= 0; i-- {
			ds[i].mu.Unlock()
		}
	}
}

func (m *Manifest) rlockAll() ([]*Dataset, func()) {
	ds := m.Datasets()
	for _, d := range ds {
		d.mu.RLock()
	}
	return ds, func() {
		for i := len(ds) - 1; i >= 0; i-- {
			ds[i].mu.RUnlock()
		}
	}
}

// Walk calls fn for every dataset holding all read locks. Serializers use
// it to get a consistent snapshot.
func (m *Manifest) Walk(fn func(*Dataset)) {
	ds, unlock := m.rlockAll()
	defer unlock()
	for _, d := range ds {
		fn(d)
	}
}
