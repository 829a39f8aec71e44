// Package endpoint defines the contract every backend connector implements.
//
// Architecture:
//
//	Connector  - Base contract (ID, Kind, Connect, ListEntities, ListFields, Close)
//	Sampler    - Optional: read a bounded sample of raw records
//	Registry   - Factories indexed by template ID and URI scheme
//	Source     - Parsed connection descriptor handed to factories
//
// Connector packages register their factories in init(). The orchestrator
// resolves a connection descriptor to a factory by URI scheme and never
// depends on a concrete connector type.
package endpoint

import "context"

// Connector is the contract that ALL backend connectors must implement.
//
// A Connector is created unconnected by its Factory. Connect must succeed
// before ListEntities/ListFields are called. Close must be safe to call at
// any point, including after a failed Connect.
type Connector interface {
	// ID returns the template identifier (e.g., "sql.postgres", "mongo").
	ID() string

	// Kind returns the type-table key used to map native types
	// (e.g., "sql/postgres").
	Kind() string

	// Connect opens the connection and completes the protocol handshake.
	// Failures are *core.Error values of kind ConnectionError.
	Connect(ctx context.Context) error

	// ListEntities enumerates tables/views/collections. The iterator is lazy
	// and cannot be rewound; enumerate again only after reconnecting.
	ListEntities(ctx context.Context) (Iterator[*Entity], error)

	// ListFields describes the fields of one entity, ordered by position.
	ListFields(ctx context.Context, entity *Entity) ([]*Field, error)

	// Close releases any resources held by the connector.
	Close() error
}

// Sampler connectors can read a bounded sample of raw records.
type Sampler interface {
	// Sample returns up to limit records from entity.
	// Returns an Iterator that must be closed after use.
	Sample(ctx context.Context, entity *Entity, limit int) (Iterator[Record], error)
}
