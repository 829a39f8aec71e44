// Package core provides shared models used across all inspection components.
// These models are backend-agnostic and are consumed by connectors, the
// manifest model, the serializer and the orchestrator alike.
//
// Structure:
//
//	types.go       - Canonical type enumeration
//	diagnostic.go  - Diagnostic records and the ordered Diagnostics stream
//	errors.go      - Error taxonomy (kinds, retryability)
package core
