// Package http implements the REST and websocket handlers of the dashboard
// API. Handlers stay thin: they parse the request, call a domain service and
// render the result. Every failure goes through apierrors.ErrorHandler, which
// answers with RFC 7807 problem details; ClassifyError maps the domain
// sentinels onto HTTP statuses.
//
// Each handler exposes Routes() returning a chi sub-router that the
// application mounts under /api/v1.
package http
