// Package services holds application services that sit beside the domain
// packages. HealthService reports liveness, readiness and build information
// for the health endpoints.
package services
