package config

import (
	"errors"
	"time"
)

// DefaultAuditTopic receives audit events when no topic is configured.
const DefaultAuditTopic = "resultmail-audit"

// EnvKafkaPassword holds the SASL password. It is never read from the file.
const EnvKafkaPassword = "RESULTMAIL_KAFKA_PASSWORD"

// Audit configures where audit events go besides the log.
type Audit struct {
	Kafka KafkaAudit `yaml:"kafka,omitempty"`
}

// KafkaAudit enables the Kafka audit sink when Brokers is non-empty.
type KafkaAudit struct {
	Brokers      []string      `yaml:"brokers,omitempty"`
	Topic        string        `yaml:"topic,omitempty"`
	Compression  string        `yaml:"compression,omitempty"`
	RequiredAcks int           `yaml:"required-acks,omitempty"`
	WriteTimeout time.Duration `yaml:"write-timeout,omitempty"`
	TLS          KafkaTLS      `yaml:"tls,omitempty"`
	SASL         KafkaSASL     `yaml:"sasl,omitempty"`
}

// KafkaTLS points at PEM files; CertFile and KeyFile enable mTLS.
type KafkaTLS struct {
	Enabled            bool   `yaml:"enabled,omitempty"`
	CAFile             string `yaml:"ca-file,omitempty"`
	CertFile           string `yaml:"cert-file,omitempty"`
	KeyFile            string `yaml:"key-file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify,omitempty"`
}

// KafkaSASL selects PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
type KafkaSASL struct {
	Mechanism string `yaml:"mechanism,omitempty"`
	Username  string `yaml:"username,omitempty"`
}

// Enabled reports whether a Kafka sink should be created.
func (k KafkaAudit) Enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaAudit) validate() error {
	if k.RequiredAcks < -1 || k.RequiredAcks > 1 {
		return errors.New("audit kafka required-acks must be -1, 0 or 1")
	}
	if k.WriteTimeout < 0 {
		return errors.New("audit kafka write-timeout cannot be negative")
	}
	if (k.TLS.CertFile == "") != (k.TLS.KeyFile == "") {
		return errors.New("audit kafka tls cert-file and key-file must be set together")
	}
	if k.SASL.Mechanism != "" && k.SASL.Username == "" {
		return errors.New("audit kafka sasl username is required with a mechanism")
	}
	return nil
}
