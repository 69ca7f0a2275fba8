// Package audit records what a batch run did: one event when the run starts,
// one per recipient with the delivery outcome, and one when the run ends.
// Events go to the structured log and, optionally, to a Kafka topic.
package audit
