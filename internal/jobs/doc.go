// Package jobs persists render jobs and synthesized timelines in SQLite.
//
// The Store is the single source of truth for job state. Every status change
// is a compare-and-swap on the previous status so a stale worker can never
// overwrite a newer transition such as a cancel that landed mid-encode.
// Terminal states (completed, failed, cancelled) reject every transition.
//
// Progress writes only ever raise the stored value; late or duplicate ticks
// are silently ignored. Terminal jobs are removed only by retention cleanup.
//
// Schema changes bump schemaVersion; operators delete the database to adopt
// the new schema.
package jobs
