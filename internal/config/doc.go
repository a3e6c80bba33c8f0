// Package config loads, normalizes, and validates murmur configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MURMUR_AI_API_KEY and MURMUR_BRIDGE_TOKEN. The Config type centralizes every
// knob the daemon and CLI need: polling floors, dispatch retry policy,
// per-account reply caps and the classifier rule table.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
