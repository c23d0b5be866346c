// Command slidecast is the command-line front end for the slidecast daemon.
//
// Local commands (ingest, config, preflight) work without a running daemon.
// Render commands talk to the daemon's HTTP API at --api, which defaults to
// paths.api_bind from the configuration file.
package main
