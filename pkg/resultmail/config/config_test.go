package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := writeFile(t, "resultmail.yaml", `
relay:
  host: smtp.example.org
  dial-timeout: 3s
recipients:
  acceptance: data/accepted.csv
send-interval: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org", cfg.Relay.Host)
	assert.Equal(t, DefaultRelayPort, cfg.Relay.Port, "unset port falls back to default")
	assert.Equal(t, 3*time.Second, cfg.Relay.DialTimeout)
	assert.Equal(t, "data/accepted.csv", cfg.Recipients.Acceptance)
	assert.Equal(t, DefaultRejectionTable, cfg.Recipients.Rejection)
	assert.Equal(t, DefaultAcceptancePreview, cfg.Preview.Acceptance)
	assert.Equal(t, 2*time.Second, cfg.SendInterval)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "unknown key", content: "relay:\n  hostname: x\n", errMsg: "failed to parse config"},
		{name: "port out of range", content: "relay:\n  port: 70000\n", errMsg: "out of range"},
		{name: "negative interval", content: "send-interval: -1s\n", errMsg: "send-interval"},
		{name: "bad delimiter", content: "recipients:\n  delimiter: ';;'\n", errMsg: "single character"},
		{name: "bad acks", content: "audit:\n  kafka:\n    required-acks: 2\n", errMsg: "required-acks"},
		{name: "cert without key", content: "audit:\n  kafka:\n    tls:\n      cert-file: c.pem\n", errMsg: "cert-file and key-file"},
		{name: "sasl without user", content: "audit:\n  kafka:\n    sasl:\n      mechanism: PLAIN\n", errMsg: "username"},
		{name: "sasl password in file", content: "audit:\n  kafka:\n    sasl:\n      password: x\n", errMsg: "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "resultmail.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_AuditKafka(t *testing.T) {
	path := writeFile(t, "resultmail.yaml", `
audit:
  kafka:
    brokers: [kafka-0:9093, kafka-1:9093]
    compression: zstd
    write-timeout: 5s
    tls:
      enabled: true
      ca-file: /etc/kafka/ca.pem
    sasl:
      mechanism: SCRAM-SHA-512
      username: resultmail
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	k := cfg.Audit.Kafka
	assert.True(t, k.Enabled())
	assert.Equal(t, []string{"kafka-0:9093", "kafka-1:9093"}, k.Brokers)
	assert.Equal(t, DefaultAuditTopic, k.Topic, "unset topic falls back to default")
	assert.Equal(t, "zstd", k.Compression)
	assert.Equal(t, 5*time.Second, k.WriteTimeout)
	assert.Equal(t, KafkaTLS{Enabled: true, CAFile: "/etc/kafka/ca.pem"}, k.TLS)
	assert.Equal(t, KafkaSASL{Mechanism: "SCRAM-SHA-512", Username: "resultmail"}, k.SASL)

	assert.False(t, DefaultConfig().Audit.Kafka.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	cfg, err := LoadOptional(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayHost, cfg.Relay.Host)
}

func TestTables_Comma(t *testing.T) {
	tests := []struct {
		delimiter string
		want      rune
		wantErr   bool
	}{
		{delimiter: "", want: ','},
		{delimiter: ";", want: ';'},
		{delimiter: `\t`, want: '\t'},
		{delimiter: "ab", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.delimiter, func(t *testing.T) {
			got, err := Tables{Delimiter: tt.delimiter}.Comma()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("RESULTMAIL_CONFIG", "")
	assert.Equal(t, "resultmail.yaml", DefaultConfigPath())

	t.Setenv("RESULTMAIL_CONFIG", "/etc/resultmail.yaml")
	assert.Equal(t, "/etc/resultmail.yaml", DefaultConfigPath())
}
