package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v2"
)

const (
	DefaultRelayHost   = "smtp.gmail.com"
	DefaultRelayPort   = 587
	DefaultDialTimeout = 10 * time.Second

	DefaultAcceptanceTable = "auto-mail/recipients.csv"
	DefaultRejectionTable  = "auto-mail/anti-recipients.csv"

	DefaultAcceptancePreview = "test_email.html"
	DefaultRejectionPreview  = "test_rejection_email.html"
)

// Config holds everything except the credentials, which only ever come from
// the environment.
type Config struct {
	Relay        Relay         `yaml:"relay,omitempty"`
	Recipients   Tables        `yaml:"recipients,omitempty"`
	Preview      PreviewFiles  `yaml:"preview,omitempty"`
	SendInterval time.Duration `yaml:"send-interval,omitempty"`
	Audit        Audit         `yaml:"audit,omitempty"`
}

// Relay describes the SMTP submission endpoint.
type Relay struct {
	Host        string        `yaml:"host,omitempty"`
	Port        int           `yaml:"port,omitempty"`
	DialTimeout time.Duration `yaml:"dial-timeout,omitempty"`
	SenderName  string        `yaml:"sender-name,omitempty"`
	// AllowInsecure permits relays that offer neither STARTTLS nor AUTH.
	// Only meant for local test relays.
	AllowInsecure         bool `yaml:"allow-insecure,omitempty"`
	InsecureSkipTLSVerify bool `yaml:"insecure-skip-tls-verify,omitempty"`
}

// Tables are the recipient table paths per variant.
type Tables struct {
	Acceptance string `yaml:"acceptance,omitempty"`
	Rejection  string `yaml:"rejection,omitempty"`
	Delimiter  string `yaml:"delimiter,omitempty"`
}

// PreviewFiles are the files the preview command writes per variant.
type PreviewFiles struct {
	Acceptance string `yaml:"acceptance,omitempty"`
	Rejection  string `yaml:"rejection,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Relay: Relay{
			Host:        DefaultRelayHost,
			Port:        DefaultRelayPort,
			DialTimeout: DefaultDialTimeout,
		},
		Recipients: Tables{
			Acceptance: DefaultAcceptanceTable,
			Rejection:  DefaultRejectionTable,
			Delimiter:  ",",
		},
		Preview: PreviewFiles{
			Acceptance: DefaultAcceptancePreview,
			Rejection:  DefaultRejectionPreview,
		},
		Audit: Audit{
			Kafka: KafkaAudit{Topic: DefaultAuditTopic},
		},
	}
}

// Load reads a YAML config file and fills every unset value from
// DefaultConfig. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Config{}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(content, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as "use defaults".
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return cfg, err
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Relay.Host) == "" {
		return errors.New("relay host cannot be empty")
	}
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay port %d out of range", c.Relay.Port)
	}
	if c.Relay.DialTimeout < 0 {
		return errors.New("relay dial-timeout cannot be negative")
	}
	if c.SendInterval < 0 {
		return errors.New("send-interval cannot be negative")
	}
	if _, err := c.Recipients.Comma(); err != nil {
		return err
	}
	return c.Audit.Kafka.validate()
}

// Comma returns the single delimiter rune of the recipient tables.
func (t Tables) Comma() (rune, error) {
	if t.Delimiter == "" {
		return ',', nil
	}
	d := t.Delimiter
	if d == `\t` {
		d = "\t"
	}
	runes := []rune(d)
	if len(runes) != 1 {
		return 0, fmt.Errorf("recipient delimiter must be a single character, got %q", t.Delimiter)
	}
	return runes[0], nil
}
