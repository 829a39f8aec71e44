package core

import "fmt"

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a structured record describing an inspection anomaly.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Path     string
	Message  string
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Kind, d.Path, d.Message)
}

// Warning builds a warning diagnostic.
func Warning(kind Kind, path, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an error diagnostic.
func Errorf(kind Kind, path, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// FromError builds an error diagnostic for err. Kind is taken from a wrapped
// *Error when present, otherwise fallback is used.
func FromError(fallback Kind, path string, err error) Diagnostic {
	kind := fallback
	if k, ok := KindOf(err); ok {
		kind = k
	}
	return Diagnostic{Severity: SeverityError, Kind: kind, Path: path, Message: err.Error()}
}

// Diagnostics is an ordered diagnostic stream.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	return ds.filter(func(d Diagnostic) bool { return d.Severity == SeverityError })
}

// OfKind returns diagnostics of the given kind.
func (ds Diagnostics) OfKind(kind Kind) Diagnostics {
	return ds.filter(func(d Diagnostic) bool { return d.Kind == kind })
}

// ForPath returns diagnostics recorded against path.
func (ds Diagnostics) ForPath(path string) Diagnostics {
	return ds.filter(func(d Diagnostic) bool { return d.Path == path })
}

func (ds Diagnostics) filter(keep func(Diagnostic) bool) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
