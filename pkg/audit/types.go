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
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunAborted   EventType = "run.aborted"

	EventMailSent         EventType = "mail.sent"
	EventMailRenderFailed EventType = "mail.render_failed"
	EventMailSendFailed   EventType = "mail.send_failed"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a single audit record. Recipient is empty for run-level events.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	RunID     string            `json:"runId"`
	Variant   string            `json:"variant"`
	Sender    string            `json:"sender,omitempty"`
	Recipient *Recipient        `json:"recipient,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Recipient identifies the row an event is about.
type Recipient struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// NewEvent stamps a fresh ID and the current time. The severity follows
// from the event type.
func NewEvent(eventType EventType, runID, variant string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severityFor(eventType),
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Variant:   variant,
	}
}

func severityFor(t EventType) Severity {
	switch t {
	case EventMailRenderFailed, EventMailSendFailed:
		return SeverityWarning
	case EventRunAborted:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// WithRecipient attaches the recipient row and returns the event.
func (e *Event) WithRecipient(index int, name, email string) *Event {
	e.Recipient = &Recipient{Index: index, Name: name, Email: email}
	return e
}

// WithError records err's message; a nil err is ignored.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDetail adds a free-form key/value pair.
func (e *Event) WithDetail(key, value string) *Event {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}
