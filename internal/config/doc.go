// Package config loads, normalizes, and validates scanpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SCANPIPE_STORAGE_LOCATION
// environment fallback for the remote copy root. The Config type centralizes
// every knob the CLI, scheduler, and batch runner need, so the database
// location, project roots, and derivative tooling are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
