// Package preflight provides readiness checks for the directories, binaries
// and backing services slidecast depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check; the
//     results are also served from GET /api/status.
//   - The CLI "slidecast preflight" command prints the same results and
//     exits non-zero when a required check fails.
//
// Checks for optional backends (Redis queue, GCS storage, HTTP speech) only
// run when configuration selects them.
package preflight
