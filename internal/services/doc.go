// Package services defines shared utilities consumed by the ingestion and
// render pipelines and by the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp render job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent retry decisions (retry vs fail immediately).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
