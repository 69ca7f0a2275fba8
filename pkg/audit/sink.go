/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ksm-android/resultmail/pkg/metrics"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the audit event. Failures are logged at warn so they surface at
// the CLI's default level.
func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("run_id", event.RunID),
		zap.String("variant", event.Variant),
	}
	if event.Recipient != nil {
		fields = append(fields,
			zap.Int("recipient_index", event.Recipient.Index),
			zap.String("recipient_email", event.Recipient.Email))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	switch event.Severity {
	case SeverityError:
		s.logger.Error("audit_event", fields...)
	case SeverityWarning:
		s.logger.Warn("audit_event", fields...)
	default:
		s.logger.Info("audit_event", fields...)
	}
	return nil
}

// Close is a no-op for LogSink.
func (s *LogSink) Close() error {
	return nil
}

// Name returns the sink identifier.
func (s *LogSink) Name() string {
	return "log"
}

// Recorder fans events out to every sink. A failing sink never stops the
// others or the batch; its error is logged and returned.
type Recorder struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewRecorder fans out to sinks in order.
func NewRecorder(logger *zap.Logger, sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, logger: logger}
}

// Record writes event to all sinks and returns their joined errors.
func (r *Recorder) Record(ctx context.Context, event *Event) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, event); err != nil {
			r.logger.Warn("failed to write audit event",
				zap.String("sink", s.Name()),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.AuditEventsWritten.WithLabelValues(s.Name()).Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the configured sink names.
func (r *Recorder) Sinks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}
