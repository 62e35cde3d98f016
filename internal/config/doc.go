// Package config loads, normalizes, and validates creditscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file next to the
// config and honours environment fallbacks such as CREDITSCAN_PLEX_DB.
//
// Detection settings come from the [detection] section and may be overridden
// per directory with a .creditscan.toml file; SettingsFor resolves the
// effective values for a given season directory.
package config
