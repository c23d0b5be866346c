// Package api is the HTTP boundary of slidecast. It maps routes onto the
// controller package and defines the wire types shared by the server and the
// CLI client.
//
// # Routes
//
//	POST /api/ingest                upload a deck (multipart "file" or raw body)
//	GET  /api/timelines/{id}        stored timeline (?format=yaml for YAML)
//	POST /api/render                submit a render job
//	GET  /api/render                list jobs (?owner=, ?status= repeated or comma separated)
//	GET  /api/render/{id}           job status
//	POST /api/render/{id}/cancel    cancel a queued or processing job
//	POST /api/render/{id}/retry     resubmit a failed job
//	GET  /api/status                daemon, queue and dependency status
//	GET  /metrics                   prometheus exposition
//
// # Design Notes
//
// Rejected decks are answered with 422 and the structured ingest result, never
// a 5xx. Request validation failures are 400 with per-field messages, unknown
// ids 404, state conflicts 409 and broker outages 503. Every response carries
// an X-Request-ID header; the id is also attached to log records.
package api
