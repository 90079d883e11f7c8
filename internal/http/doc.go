// Package http serves the dashboard API of the leasing assistant.
//
// The router exposes the following endpoints:
//   - GET /healthz: liveness probe.
//   - POST /api/bookings: books a showing. Body: {"phone" | "lead_id", "lead_name",
//     "property", "requested", "source", "notes"}. 201 with {"booking"}; 202 with
//     {"booking","warning"} when the booking committed but the calendar mirror failed.
//   - GET /api/bookings?from&to&property&active: lists bookings in a window.
//   - POST /api/bookings/{id}/cancel, POST /api/bookings/{id}/mirror.
//   - GET /api/properties, GET /api/properties/{slug}/availability?from&to.
//   - GET|POST /api/properties/{slug}/blocks, DELETE /api/blocks/{id}: manual blocks.
//   - GET|PUT /api/settings/open-hours.
//   - POST /api/reconcile: runs one reconciliation pass and returns its report.
//   - GET /api/events: server-sent booking.created / booking.changed events.
//   - GET /auth/outlook/connect, GET /auth/outlook/callback: calendar consent flow.
//
// Errors are {"error_code","message","errors?","suggestions?"}; error_code is the
// application error kind and selects the status (conflict 409, past_time and
// validation 422, unknown_* and not_found 404, degraded 503, auth_expired 401,
// rate_limited 429, upstream_error 502, store_error 500).
//
// Times are accepted as RFC3339 instants or as wall-clock times in the display
// zone, and rendered in the display zone.
package http
