// Package http provides the JSON-over-HTTP transport used by connectors that
// reach their backend through a gateway process (the SAS JDBC bridge).
//
// Structure:
//
//	client.go     - HTTP client with rate limiting and retry
//	auth.go       - Authentication strategies (Basic, Bearer)
//	paginator.go  - Cursor pagination over POSTed queries
package http
