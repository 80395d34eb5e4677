// Package app wires the petakeu server together and manages its lifecycle.
//
// New resolves paths, initializes OpenTelemetry, selects the storage backend
// (PostgreSQL when a DSN is configured, memory otherwise), starts the job
// queue and the websocket hub, builds the domain services and mounts the
// HTTP API under /api/v1. Run serves until SIGINT or SIGTERM and then shuts
// down in reverse order:
//
//	1. Stop accepting requests and drain in-flight ones
//	2. Let running background tasks finish, abandon queued ones
//	3. Close websocket clients and the database pool
//	4. Flush telemetry
//
// The package never calls os.Exit; errors are returned to main.
package app
