package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ksm-android/resultmail/pkg/audit"
	"github.com/ksm-android/resultmail/pkg/mail"
	"github.com/ksm-android/resultmail/pkg/metrics"
	"github.com/ksm-android/resultmail/pkg/recipients"
	"github.com/ksm-android/resultmail/pkg/resultmail/config"
	"github.com/ksm-android/resultmail/pkg/resultmail/output"
)

const tracerName = "github.com/ksm-android/resultmail/pkg/batch"

// TableReader loads the recipient table of a run.
type TableReader interface {
	Read(path string) ([]recipients.Recipient, error)
}

// Renderer produces the body of a variant for one recipient.
type Renderer interface {
	Render(v mail.Variant, rcpt recipients.Recipient) (mail.Body, error)
}

// Options wires a Runner. Credentials, Table, Renderer and Transmitter are
// required.
type Options struct {
	Credentials config.CredentialsSource
	Table       TableReader
	Renderer    Renderer
	Transmitter mail.Transmitter

	// SenderName is the display name on the From header.
	SenderName string
	// SendInterval is the minimum gap between two transmissions; zero
	// disables pacing.
	SendInterval time.Duration

	// Out receives the console status lines. Defaults to io.Discard.
	Out    io.Writer
	Audit  *audit.Recorder
	Logger *zap.SugaredLogger
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Runner executes batch runs. It holds no per-run state and may be reused.
type Runner struct {
	opts    Options
	limiter *rate.Limiter
	tracer  trace.Tracer
	log     *zap.SugaredLogger
	out     io.Writer
	newID   func() string
}

func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Credentials == nil:
		return nil, errors.New("batch runner requires a credentials source")
	case opts.Table == nil:
		return nil, errors.New("batch runner requires a table reader")
	case opts.Renderer == nil:
		return nil, errors.New("batch runner requires a renderer")
	case opts.Transmitter == nil:
		return nil, errors.New("batch runner requires a transmitter")
	case opts.SendInterval < 0:
		return nil, fmt.Errorf("send interval must not be negative, got %s", opts.SendInterval)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Runner{
		opts:    opts,
		limiter: newLimiter(opts.SendInterval),
		tracer:  tp.Tracer(tracerName),
		log:     log.Named("batch"),
		out:     out,
		newID:   uuid.NewString,
	}, nil
}

// newLimiter allows one transmission per interval with no burst. The first
// transmission is never delayed.
func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Run mails variant to every recipient in the table at path.
//
// The returned error is non-nil only when the run stopped before or during
// the recipient loop: missing credentials (config.ErrMissingCredentials), an
// absent table (recipients.ErrTableNotFound), an unreadable table, or a
// cancelled context. Per-recipient failures are reported in the Report.
//
// Audit events start after the credentials are loaded, so a run without
// credentials performs no I/O at all.
func (r *Runner) Run(ctx context.Context, variant mail.Variant, path string) (*Report, error) {
	report := &Report{
		RunID:     r.newID(),
		Variant:   string(variant),
		Source:    path,
		State:     StateInit,
		StartedAt: time.Now().UTC(),
		Outcomes:  []Outcome{},
	}
	ctx, span := r.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("resultmail.run_id", report.RunID),
		attribute.String("resultmail.variant", report.Variant),
		attribute.String("resultmail.source", path),
	))
	defer span.End()
	log := r.log.With("runId", report.RunID, "variant", variant)

	// Missing credentials end the run before any audit sink is touched.
	report.State = StateLoadCredentials
	creds, err := r.opts.Credentials()
	if err != nil {
		log.Errorw("Cannot load sender credentials", "error", err)
		r.finish(report, "missing_credentials")
		failSpan(span, "missing_credentials", err)
		return report, err
	}
	log.Debugw("Loaded sender credentials", "sender", creds.SenderAddress)
	log.Infow("Starting run", "source", path, "auditSinks", r.opts.Audit.Sinks())
	r.record(ctx, audit.NewEvent(audit.EventRunStarted, report.RunID, report.Variant).WithDetail("source", path))

	report.State = StateLoadTable
	rows, err := r.opts.Table.Read(path)
	if err != nil {
		if errors.Is(err, recipients.ErrTableNotFound) {
			output.WriteTableNotFound(r.out, path)
			log.Warnw("Recipient table not found, nothing sent", "path", path)
			return r.abort(ctx, report, "table_not_found", err)
		}
		log.Errorw("Cannot read recipient table", "path", path, "error", err)
		return r.abort(ctx, report, "table_error", err)
	}
	log.Infow("Loaded recipient table", "path", path, "recipients", len(rows))

	report.State = StateSending
	for i, rcpt := range rows {
		if err := ctx.Err(); err != nil {
			log.Warnw("Run cancelled", "processed", i, "remaining", len(rows)-i)
			report.State = StateCancelled
			return r.abort(ctx, report, "cancelled", err)
		}
		outcome, err := r.process(ctx, log, report.RunID, creds, variant, i, rcpt)
		if err != nil {
			log.Warnw("Run cancelled while pacing", "processed", i, "remaining", len(rows)-i)
			report.State = StateCancelled
			return r.abort(ctx, report, "cancelled", err)
		}
		report.add(outcome)
	}

	report.State = StateDone
	r.finish(report, "done")
	span.SetAttributes(attribute.Int("resultmail.sent", report.Sent), attribute.Int("resultmail.failed", report.Failed))
	log.Infow("Run finished", "sent", report.Sent, "failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	r.record(ctx, audit.NewEvent(audit.EventRunCompleted, report.RunID, report.Variant).
		WithDetail("sent", fmt.Sprint(report.Sent)).
		WithDetail("failed", fmt.Sprint(report.Failed)))
	return report, nil
}

// process handles one recipient: render, pace, transmit, report. The error
// is non-nil only when ctx ended while waiting for the limiter.
func (r *Runner) process(ctx context.Context, log *zap.SugaredLogger, runID string, creds config.Credentials,
	variant mail.Variant, index int, rcpt recipients.Recipient) (Outcome, error) {
	outcome := Outcome{Index: index, Name: rcpt.Name(), Email: rcpt.Email()}
	ctx, span := r.tracer.Start(ctx, "batch.recipient", trace.WithAttributes(
		attribute.Int("resultmail.recipient.index", index),
		attribute.String("resultmail.recipient.email", outcome.Email),
	))
	defer span.End()
	event := func(t audit.EventType) *audit.Event {
		return audit.NewEvent(t, runID, string(variant)).WithRecipient(index, outcome.Name, outcome.Email)
	}

	body, err := r.opts.Renderer.Render(variant, rcpt)
	if err != nil {
		outcome.Stage, outcome.Error = StageRender, err.Error()
		log.Errorw("Error sending email", "recipient", outcome.Email, "stage", StageRender, "error", err)
		failSpan(span, StageRender, err)
		r.fail(outcome, err)
		metrics.RecipientsProcessed.WithLabelValues(string(variant), "render_failed").Inc()
		r.record(ctx, event(audit.EventMailRenderFailed).WithError(err))
		return outcome, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		failSpan(span, "pacing", err)
		return outcome, err
	}

	msg := mail.NewMessage(creds.SenderAddress, r.opts.SenderName, rcpt, body)
	res := r.opts.Transmitter.Send(ctx, creds, msg)
	if !res.OK {
		outcome.Stage, outcome.Error = StageTransmit, errString(res.Err)
		failSpan(span, StageTransmit, res.Err)
		r.fail(outcome, res.Err)
		metrics.RecipientsProcessed.WithLabelValues(string(variant), "send_failed").Inc()
		r.record(ctx, event(audit.EventMailSendFailed).WithError(res.Err))
		return outcome, nil
	}

	outcome.Sent = true
	output.WriteSent(r.out, outcome.Email, outcome.Name)
	metrics.RecipientsProcessed.WithLabelValues(string(variant), "sent").Inc()
	r.record(ctx, event(audit.EventMailSent))
	return outcome, nil
}

func (r *Runner) fail(o Outcome, err error) {
	if err != nil {
		output.WriteSendError(r.out, o.Email, err)
	}
	output.WriteFailed(r.out, o.Email, o.Name)
}

func (r *Runner) abort(ctx context.Context, report *Report, state string, err error) (*Report, error) {
	r.finish(report, state)
	failSpan(trace.SpanFromContext(ctx), state, err)
	// Cancellation still gets its audit record.
	r.record(context.WithoutCancel(ctx), audit.NewEvent(audit.EventRunAborted, report.RunID, report.Variant).
		WithError(err).
		WithDetail("state", string(report.State)))
	return report, err
}

func (r *Runner) finish(report *Report, state string) {
	report.FinishedAt = time.Now().UTC()
	metrics.BatchRuns.WithLabelValues(report.Variant, state).Inc()
	metrics.BatchDuration.WithLabelValues(report.Variant).Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
	metrics.BatchLastRunTimestamp.WithLabelValues(report.Variant).Set(float64(report.FinishedAt.Unix()))
}

// record writes e to the audit sinks. Audit failures never fail the run.
func (r *Runner) record(ctx context.Context, e *audit.Event) {
	if err := r.opts.Audit.Record(ctx, e); err != nil {
		r.log.Debugw("Audit event not written to every sink", "runId", e.RunID, "eventType", e.Type, "error", err)
	}
}

func failSpan(span trace.Span, stage string, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, stage)
}

func errString(err error) string {
	if err == nil {
		return "unknown transmitter failure"
	}
	return err.Error()
}
