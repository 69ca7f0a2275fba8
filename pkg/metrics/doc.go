// Package metrics defines the Prometheus collectors for mail sends, batch
// runs and audit sinks. A batch run is short lived, so the values are
// exported by writing a textfile rather than serving an endpoint.
package metrics
