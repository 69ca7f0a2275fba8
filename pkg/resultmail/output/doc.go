// Package output formats what resultmail prints: per-recipient status
// lines, preview confirmations and the run report in text, JSON or YAML.
package output
