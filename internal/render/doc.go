// Package render runs the asynchronous render pipeline.
//
// A Pool owns N workers. Each worker leases one broker message at a time,
// claims the referenced job in the store, keeps both leases alive with a
// heartbeat, and drives narration, encoding and upload. Cancellation is
// cooperative: the worker notices at checkpoints and on heartbeat, cancels
// the encoder and leaves the job in whatever state the store allowed.
//
// The Watchdog repairs drift between broker and store, and Retention purges
// terminal jobs on a cron schedule.
package render
