// Package controller implements the public boundaries of slidecast: deck
// ingestion and the render job operations (submit, status, cancel, list and
// retry). The HTTP API and CLI are thin adapters over this package.
package controller
