package core

// Type is a backend-independent canonical type.
type Type string

const (
	TypeString    Type = "string"
	TypeInteger   Type = "integer"
	TypeNumber    Type = "number"
	TypeBoolean   Type = "boolean"
	TypeDatetime  Type = "datetime"
	TypeDate      Type = "date"
	TypeTime      Type = "time"
	TypeBinary    Type = "binary"
	TypeGeometry  Type = "geometry"
	TypeReference Type = "reference"
	TypeArray     Type = "array"
	TypeObject    Type = "object"
	TypeUnknown   Type = "unknown"
)

var allTypes = []Type{
	TypeString,
	TypeInteger,
	TypeNumber,
	TypeBoolean,
	TypeDatetime,
	TypeDate,
	TypeTime,
	TypeBinary,
	TypeGeometry,
	TypeReference,
	TypeArray,
	TypeObject,
	TypeUnknown,
}

// Types returns every canonical type in declaration order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType returns the canonical type named s.
func ParseType(s string) (Type, bool) {
	for _, t := range allTypes {
		if string(t) == s {
			return t, true
		}
	}
	return TypeUnknown, false
}

// IsKnown reports whether t carries real type information.
func (t Type) IsKnown() bool {
	return t != "" && t != TypeUnknown
}

func (t Type) String() string { return string(t) }
