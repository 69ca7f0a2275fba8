package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteObject(t *testing.T) {
	obj := map[string]any{"runId": "abc", "sent": 2}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteObject(&buf, FormatJSON, obj))
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "abc", decoded["runId"])
		assert.EqualValues(t, 2, decoded["sent"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteObject(&buf, FormatYAML, obj))
		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "abc", decoded["runId"])
		assert.Equal(t, 2, decoded["sent"])
	})

	t.Run("text needs a formatter", func(t *testing.T) {
		assert.Error(t, WriteObject(&bytes.Buffer{}, FormatText, obj))
	})

	t.Run("unknown", func(t *testing.T) {
		err := WriteObject(&bytes.Buffer{}, Format("xml"), obj)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	WriteSent(&buf, "alice@x.com", "Alice")
	WriteSendError(&buf, "bob@x.com", errors.New("missing role"))
	WriteFailed(&buf, "bob@x.com", "Bob")
	WriteTableNotFound(&buf, "auto-mail/recipients.csv")
	WritePreviewSaved(&buf, "email", "test_email.html")

	assert.Equal(t, strings.Join([]string{
		"✓ Email sent successfully to alice@x.com (Alice)",
		"Error sending email to bob@x.com: missing role",
		"✗ Failed to send email to bob@x.com (Bob)",
		"Error: recipients.csv not found!",
		"Test email saved to 'test_email.html'",
		"",
	}, "\n"), buf.String())
}

func TestWriteOutcomeTable(t *testing.T) {
	var buf bytes.Buffer
	WriteOutcomeTable(&buf, []OutcomeRow{
		{Index: 0, Email: "alice@x.com", Name: "Alice", Sent: true},
		{Index: 1, Email: "bob@x.com", Name: "Bob", Reason: "render: role is required"},
		{Index: 2},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"#", "EMAIL", "NAME", "STATUS", "REASON"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "alice@x.com", "Alice", "sent", "-"}, strings.Fields(lines[1]))
	assert.Contains(t, lines[2], "failed")
	assert.Contains(t, lines[2], "render: role is required")
	assert.Equal(t, []string{"3", "-", "-", "failed", "-"}, strings.Fields(lines[3]))
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, 3, 1)
	assert.Equal(t, "3 sent, 1 failed\n", buf.String())
}
