// Package config loads, normalizes, and validates slidecast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SLIDECAST_REDIS_ADDR and GOOGLE_CLOUD_BUCKET. The Config type centralizes
// every knob the daemon and CLI need: ingestion limits, timeline settings,
// render pool sizing, queue broker selection, and collaborator back-ends.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
