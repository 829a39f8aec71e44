package endpoint

// Descriptor provides metadata about a connector template.
// Used by the CLI to list available backends.
type Descriptor struct {
	ID          string
	Family      string // "sql", "jdbc", "document"
	Title       string
	Vendor      string
	Description string
	Schemes     []string // URI schemes that select this connector
	Kind        string   // type-table key
	DefaultPort int
	Driver      string
	Options     []*OptionDescriptor
	SampleURI   string
}

// OptionDescriptor defines a backend-specific option accepted next to the
// connection descriptor.
type OptionDescriptor struct {
	Key          string
	Label        string
	ValueType    string // "string", "integer", "boolean"
	Description  string
	DefaultValue string
}
