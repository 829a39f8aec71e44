package manifest

// Property maturity levels.
const (
	LevelStub       = 0 // dataset without resources
	LevelNamed      = 1
	LevelNative     = 2 // native type known, canonical type unknown
	LevelTyped      = 3
	LevelConstraint = 4 // typed and required, primary key or resolved reference
)

// ComputeLevel derives the maturity level of p within m.
func ComputeLevel(m *Model, p *Property) int {
	switch {
	case p.Type.IsKnown():
		if p.Required || p.Target != nil || (m != nil && m.isPrimaryKey(p.Name)) {
			return LevelConstraint
		}
		return LevelTyped
	case p.NativeType != "":
		return LevelNative
	default:
		return LevelNamed
	}
}

func (m *Model) updateLevels() {
	for _, p := range m.PropertyList() {
		p.Level = ComputeLevel(m, p)
	}
}
