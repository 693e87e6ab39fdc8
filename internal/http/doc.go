// Package http exposes the appointment store over HTTP.
//
// The router serves the same routes at the root and under /api:
//   - GET /appointments: the full current set as a JSON array. When the
//     backend cannot be read the response is an empty array with a Warning
//     header.
//   - POST /appointments: creates a record from every field except id and
//     returns it with status 201. Validation failures answer 422 with
//     localized field errors; backend failures answer 503.
//   - DELETE /appointments/{id}: returns {"success":true} whether or not the
//     id existed.
//   - PUT /appointments/{id}/complete: marks the record completed and returns
//     {"success":true}.
//   - GET /appointments/upcoming, /past, /missed, /malformed and /summary:
//     classified views computed from one clock sample.
//   - GET /appointments.ics: the current set as an iCalendar feed.
//   - GET /healthz: liveness probe.
package http
