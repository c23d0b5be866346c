// Package renderqueue is the durable work queue feeding render workers.
//
// A Broker hands out time-bounded leases on messages that reference render
// jobs. A lease that is neither acked, nacked nor dead-lettered before it
// expires makes the message deliverable again. Brokers are independent of
// the job store; the render watchdog repairs any drift between the two.
//
// Two brokers are provided: SQLite (the default, a table in its own database
// file) and Redis (sorted sets for ready and leased messages, a hash per
// message and a dead-letter list).
package renderqueue
