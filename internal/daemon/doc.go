// Package daemon coordinates the long-running slidecast process.
//
// It wires configuration, the job store, the render queue broker, artifact
// storage, the speech and encoder collaborators, and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start launches the render pool, the watchdog, and the retention schedule;
// Stop hands in-flight jobs back to the queue before releasing the lock.
//
// Keep orchestration logic here: request handling lives in internal/api and
// internal/controller, job execution in internal/render.
package daemon
