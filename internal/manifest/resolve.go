package manifest

import (
	"strings"

	"github.com/04d4/spinta/internal/core"
)

// modelIndex looks models up by name or source entity within a dataset.
type modelIndex struct {
	dataset  string
	byRes    map[string]map[string]*Path // resource → name/source → model path
	byName   map[string][]Path
	bySource map[string][]Path
	models   map[Path]*Model
}

func newModelIndex(d *Dataset) *modelIndex {
	idx := &modelIndex{
		dataset:  d.Name,
		byRes:    make(map[string]map[string]*Path),
		byName:   make(map[string][]Path),
		bySource: make(map[string][]Path),
		models:   make(map[Path]*Model),
	}
	for _, r := range d.ResourceList() {
		local := make(map[string]*Path)
		for _, m := range r.ModelList() {
			p := Path{Dataset: d.Name, Resource: r.Name, Model: m.Name}
			idx.models[p] = m
			idx.byName[m.Name] = append(idx.byName[m.Name], p)
			local[m.Name] = &p
			if m.Source != "" && m.Source != m.Name {
				idx.bySource[m.Source] = append(idx.bySource[m.Source], p)
				if _, taken := local[m.Source]; !taken {
					local[m.Source] = &p
				}
			}
		}
		idx.byRes[r.Name] = local
	}
	return idx
}

// lookup finds name in resource first, then uniquely in the dataset. It
// reports ambiguous when several resources provide the name.
func (idx *modelIndex) lookup(resource, name string) (p Path, found, ambiguous bool) {
	if local, ok := idx.byRes[resource]; ok {
		if hit, ok := local[name]; ok {
			return *hit, true, false
		}
	}
	for _, candidates := range [][]Path{idx.byName[name], idx.bySource[name]} {
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], true, false
		default:
			return Path{}, false, true
		}
	}
	return Path{}, false, false
}

// ResolveReferences binds every property that declares a Ref to the target
// property. On success Ref.Model is rewritten to the target model name
// ("dataset/model" across datasets), Ref.Property to the target property
// and the type becomes reference. Unresolvable references turn the
// property's type to unknown and yield an UnresolvedReference error.
//
// A Ref without a property points at the target's single-column primary key.
func (m *Manifest) ResolveReferences() core.Diagnostics {
	datasets, unlock := m.lockAll()
	defer unlock()

	indexes := make(map[string]*modelIndex, len(datasets))
	for _, d := range datasets {
		indexes[d.Name] = newModelIndex(d)
	}

	var diags core.Diagnostics
	for _, d := range datasets {
		for _, r := range d.ResourceList() {
			for _, model := range r.ModelList() {
				for _, p := range model.PropertyList() {
					if p.Ref == nil {
						continue
					}
					path := Path{Dataset: d.Name, Resource: r.Name, Model: model.Name, Property: p.Name}
					if msg := resolve(indexes, path, p); msg != "" {
						p.Type = core.TypeUnknown
						p.Target = nil
						diags = append(diags, core.Errorf(core.KindUnresolvedReference, path.String(),
							"reference %s: %s", p.Ref, msg))
					}
				}
				model.updateLevels()
			}
		}
	}
	return diags
}

// resolve binds p and returns "" or the reason it could not.
func resolve(indexes map[string]*modelIndex, from Path, p *Property) string {
	if p.Ref.Model == "" {
		return "target model is empty"
	}
	idx := indexes[from.Dataset]
	name, resource := p.Ref.Model, from.Resource
	if other, rest, ok := splitDataset(indexes, name); ok {
		idx, name, resource = other, rest, ""
	}

	target, found, ambiguous := idx.lookup(resource, name)
	if ambiguous {
		return "ambiguous target model"
	}
	if !found {
		return "target model not found"
	}
	tm := idx.models[target]

	prop := p.Ref.Property
	if prop == "" {
		if len(tm.PrimaryKey) != 1 {
			return "target model has no single-column primary key"
		}
		prop = tm.PrimaryKey[0]
	}
	if _, ok := tm.Property(prop); !ok {
		return "target property not found"
	}

	target.Property = prop
	p.Target = &target
	p.Type = core.TypeReference
	p.Ref.Property = prop
	p.Ref.Model = target.Model
	if target.Dataset != from.Dataset {
		p.Ref.Model = target.Dataset + "/" + target.Model
	}
	return ""
}

// splitDataset splits "dataset/model" at the longest dataset name that is
// present in indexes. Dataset names may themselves contain slashes.
func splitDataset(indexes map[string]*modelIndex, name string) (*modelIndex, string, bool) {
	for i := strings.LastIndexByte(name, '/'); i > 0; i = strings.LastIndexByte(name[:i], '/') {
		if idx, ok := indexes[name[:i]]; ok && i < len(name)-1 {
			return idx, name[i+1:], true
		}
	}
	return nil, "", false
}
