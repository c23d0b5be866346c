// Package logging builds the slog loggers shared by the slidecast daemon and CLI.
//
// Two handlers are available. The console handler writes one line per record
// with the component and render job lifted into the prefix, and the JSON
// handler emits flat objects for log shippers. Field* constants name the keys
// every package uses, and WithContext copies job, stage, worker and request
// identifiers from a context onto a logger.
package logging
