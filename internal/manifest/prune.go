package manifest

// Prune removes stale models and stale properties of the remaining models.
// It returns the removed paths in manifest order. Inspections never prune on
// their own.
func (m *Manifest) Prune() []Path {
	datasets, unlock := m.lockAll()
	defer unlock()

	var removed []Path
	for _, d := range datasets {
		for _, r := range d.ResourceList() {
			for _, model := range r.ModelList() {
				mp := Path{Dataset: d.Name, Resource: r.Name, Model: model.Name}
				if model.Status == StatusStale {
					r.Models.Delete(model.Name)
					removed = append(removed, mp)
					continue
				}
				for _, p := range model.PropertyList() {
					if p.Status != StatusStale {
						continue
					}
					model.Properties.Delete(p.Name)
					model.PrimaryKey = without(model.PrimaryKey, p.Name)
					pp := mp
					pp.Property = p.Name
					removed = append(removed, pp)
				}
			}
		}
	}
	return removed
}

func without(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
