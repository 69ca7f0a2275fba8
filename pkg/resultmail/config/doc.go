// Package config loads resultmail's run configuration: sender credentials
// from the environment (optionally seeded from a .env file) and relay,
// table and preview settings from an optional YAML file.
package config
