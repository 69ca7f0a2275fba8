package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the resultmail collectors. It is separate from the default
// registry so the textfile output only carries our series.
var Registry = prometheus.NewRegistry()

var (
	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_mail_send_success_total",
		Help: "Total number of messages accepted by the mail relay",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_mail_send_failure_total",
		Help: "Total number of messages the mail relay did not accept, by failure reason",
	}, []string{"host", "reason"})

	// Batch metrics
	RecipientsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_batch_recipients_total",
		Help: "Total number of recipients processed by a batch, by outcome (sent, render_failed, send_failed)",
	}, []string{"variant", "outcome"})
	BatchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_batch_runs_total",
		Help: "Total number of batch runs, by final state (done, missing_credentials, table_not_found, table_error, cancelled)",
	}, []string{"variant", "state"})
	BatchDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resultmail_batch_duration_seconds",
		Help: "Wall clock duration of the last batch run",
	}, []string{"variant"})
	BatchLastRunTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resultmail_batch_last_run_timestamp_seconds",
		Help: "Unix time the last batch run finished",
	}, []string{"variant"})

	// Audit metrics
	AuditEventsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_audit_events_written_total",
		Help: "Total number of audit events written, by sink",
	}, []string{"sink"})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultmail_audit_sink_errors_total",
		Help: "Total number of audit sink write errors, by sink and error type",
	}, []string{"sink", "error_type"})
)

func init() {
	Registry.MustRegister(MailSendSuccess)
	Registry.MustRegister(MailSendFailure)
	Registry.MustRegister(RecipientsProcessed)
	Registry.MustRegister(BatchRuns)
	Registry.MustRegister(BatchDuration)
	Registry.MustRegister(BatchLastRunTimestamp)
	Registry.MustRegister(AuditEventsWritten)
	Registry.MustRegister(AuditSinkErrors)
}

// WriteTextfile writes the current values in the Prometheus text format to
// path, for the node exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
