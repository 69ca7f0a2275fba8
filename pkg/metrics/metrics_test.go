package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailMetricsExistAndIncrement(t *testing.T) {
	host := "test-relay"

	MailSendSuccess.WithLabelValues(host).Inc()
	if v := testutil.ToFloat64(MailSendSuccess.WithLabelValues(host)); v < 1 {
		t.Fatalf("expected MailSendSuccess >= 1, got %v", v)
	}

	MailSendFailure.WithLabelValues(host, "auth").Add(2)
	if v := testutil.ToFloat64(MailSendFailure.WithLabelValues(host, "auth")); v < 2 {
		t.Fatalf("expected MailSendFailure >= 2, got %v", v)
	}
}

func TestRecipientsProcessedLabelCardinality(t *testing.T) {
	RecipientsProcessed.Reset()
	defer RecipientsProcessed.Reset()

	RecipientsProcessed.WithLabelValues("acceptance", "sent").Inc()
	RecipientsProcessed.WithLabelValues("acceptance", "render_failed").Inc()
	RecipientsProcessed.WithLabelValues("rejection", "sent").Inc()

	assert.Equal(t, 3, testutil.CollectAndCount(RecipientsProcessed))
	assert.Panics(t, func() {
		RecipientsProcessed.WithLabelValues("acceptance").Inc()
	}, "missing outcome label must be rejected")
}

func TestWriteTextfile(t *testing.T) {
	BatchRuns.WithLabelValues("rejection", "done").Inc()

	path := filepath.Join(t.TempDir(), "resultmail.prom")
	require.NoError(t, WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "resultmail_batch_runs_total")
	assert.Contains(t, string(content), `variant="rejection"`)
	assert.NotContains(t, string(content), "go_goroutines", "default collectors are not exported")
}
