package audit

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventRunStarted, "run-42", "acceptance")

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, EventRunStarted, e.Type)
	assert.Equal(t, "run-42", e.RunID)
	assert.Equal(t, "acceptance", e.Variant)
	assert.False(t, e.Timestamp.IsZero())
	assert.Nil(t, e.Recipient)

	other := NewEvent(EventRunStarted, "run-42", "acceptance")
	assert.NotEqual(t, e.ID, other.ID)
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      Severity
	}{
		{EventRunStarted, SeverityInfo},
		{EventRunCompleted, SeverityInfo},
		{EventMailSent, SeverityInfo},
		{EventMailRenderFailed, SeverityWarning},
		{EventMailSendFailed, SeverityWarning},
		{EventRunAborted, SeverityError},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.want, NewEvent(tt.eventType, "r", "v").Severity)
		})
	}
}

func TestEventBuilders(t *testing.T) {
	e := NewEvent(EventMailSendFailed, "run-1", "rejection").
		WithRecipient(3, "Bob", "bob@example.com").
		WithError(errors.New("550 mailbox unavailable")).
		WithDetail("reason", "rejected")

	require.NotNil(t, e.Recipient)
	assert.Equal(t, Recipient{Index: 3, Name: "Bob", Email: "bob@example.com"}, *e.Recipient)
	assert.Equal(t, "550 mailbox unavailable", e.Error)
	assert.Equal(t, map[string]string{"reason": "rejected"}, e.Details)

	assert.Empty(t, NewEvent(EventMailSent, "r", "v").WithError(nil).Error)
}
