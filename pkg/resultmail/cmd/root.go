package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksm-android/resultmail/pkg/mail"
	"github.com/ksm-android/resultmail/pkg/resultmail/config"
	"github.com/ksm-android/resultmail/pkg/resultmail/output"
	"github.com/ksm-android/resultmail/pkg/system"
)

// TransmitterFactory builds the transmitter of a send run.
type TransmitterFactory func(relay config.Relay, logger *zap.SugaredLogger) mail.Transmitter

type Config struct {
	ConfigPath   string
	EnvFile      string
	OutputWriter io.Writer
	// LogWriter receives log output and, for json/yaml output, the status
	// lines. Defaults to stderr.
	LogWriter io.Writer
	// Lookup resolves environment variables for credentials and flag
	// fallbacks. Defaults to os.LookupEnv.
	Lookup         config.LookupFunc
	NewTransmitter TransmitterFactory
	// Context is the parent of every command context, typically cancelled
	// on SIGINT.
	Context context.Context
}

type runtimeState struct {
	configPath     string
	envFile        string
	cfg            *config.Config
	outputFormat   string
	verbose        bool
	debug          bool
	escapeHTML     bool
	sendInterval   time.Duration
	metricsFile    string
	auditBrokers   []string
	auditTopic     string
	auditCompress  string
	auditTLS       bool
	auditSASLMech  string
	auditSASLUser  string
	tracing        bool
	traceExporter  string
	traceEndpoint  string
	traceInsecure  bool
	delimiter      string
	writer         io.Writer
	logWriter      io.Writer
	lookup         config.LookupFunc
	newTransmitter TransmitterFactory
	logger         *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		EnvFile:      config.DefaultEnvFile(),
		OutputWriter: os.Stdout,
		LogWriter:    os.Stderr,
		Lookup:       os.LookupEnv,
	}
}

func defaultTransmitter(relay config.Relay, logger *zap.SugaredLogger) mail.Transmitter {
	return mail.NewSMTPTransmitter(relay, logger)
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:     cfg.ConfigPath,
		envFile:        cfg.EnvFile,
		writer:         cfg.OutputWriter,
		logWriter:      cfg.LogWriter,
		lookup:         cfg.Lookup,
		newTransmitter: cfg.NewTransmitter,
	}

	root := &cobra.Command{
		Use:          "resultmail",
		Short:        "Send acceptance and rejection result emails",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.logWriter == nil {
				rt.logWriter = os.Stderr
			}
			if rt.lookup == nil {
				rt.lookup = os.LookupEnv
			}
			if rt.newTransmitter == nil {
				rt.newTransmitter = defaultTransmitter
			}
			if rt.outputFormat == "" {
				rt.outputFormat = rt.getenv("RESULTMAIL_OUTPUT")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(rt.getenv("RESULTMAIL_VERBOSE"), "true")
			}
			if _, err := output.ParseFormat(rt.outputFormat); err != nil {
				return err
			}
			rt.logger = system.NewLogger(system.ResolveLogLevel(rt.debug, rt.verbose), rt.logWriter)

			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			explicit := cmd.Flags().Changed("config")
			if env := rt.getenv("RESULTMAIL_CONFIG"); !explicit && env != "" {
				rt.configPath = env
				explicit = true
			}
			if err := rt.loadConfig(explicit); err != nil {
				return err
			}
			if cmd.Flags().Changed("delimiter") {
				rt.cfg.Recipients.Delimiter = rt.delimiter
			}
			if cmd.Flags().Changed("send-interval") {
				rt.cfg.SendInterval = rt.sendInterval
			}
			rt.applyAuditFlags(cmd)
			return rt.cfg.Validate()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file (env: RESULTMAIL_CONFIG)")
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", rt.envFile, "Dotenv file loaded before reading EMAIL and EMAIL_PASSWORD")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: text, json, yaml (env: RESULTMAIL_OUTPUT)")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log each step (env: RESULTMAIL_VERBOSE)")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&rt.escapeHTML, "escape-html", false, "HTML-escape recipient fields in rendered mails")
	root.PersistentFlags().DurationVar(&rt.sendInterval, "send-interval", 0, "Minimum delay between two sends, e.g. 2s (0 disables pacing)")
	root.PersistentFlags().StringVar(&rt.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after a run")
	root.PersistentFlags().StringSliceVar(&rt.auditBrokers, "audit-kafka-brokers", nil, "Kafka brokers receiving audit events")
	root.PersistentFlags().StringVar(&rt.auditTopic, "audit-kafka-topic", "", "Kafka topic for audit events (default from config, resultmail-audit)")
	root.PersistentFlags().StringVar(&rt.auditCompress, "audit-kafka-compression", "", "Kafka compression: none, gzip, snappy, lz4, zstd")
	root.PersistentFlags().BoolVar(&rt.auditTLS, "audit-kafka-tls", false, "Use TLS towards the Kafka brokers")
	root.PersistentFlags().StringVar(&rt.auditSASLMech, "audit-kafka-sasl-mechanism", "", "Kafka SASL mechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512 (password from RESULTMAIL_KAFKA_PASSWORD)")
	root.PersistentFlags().StringVar(&rt.auditSASLUser, "audit-kafka-sasl-username", "", "Kafka SASL username")
	root.PersistentFlags().BoolVar(&rt.tracing, "tracing", false, "Export OpenTelemetry traces of a send run")
	root.PersistentFlags().StringVar(&rt.traceExporter, "trace-exporter", "otlp", "Trace exporter: otlp, stdout, none")
	root.PersistentFlags().StringVar(&rt.traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC collector endpoint")
	root.PersistentFlags().BoolVar(&rt.traceInsecure, "trace-insecure", false, "Disable TLS towards the OTLP collector")
	root.PersistentFlags().StringVar(&rt.delimiter, "delimiter", "", "Recipient table delimiter (default from config, ',')")

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	root.SetContext(context.WithValue(parent, runtimeKey{}, rt))

	root.AddCommand(
		NewSendCommand(),
		NewPreviewCommand(),
		NewVersionCommand(),
	)

	return root
}

// applyAuditFlags overrides the audit.kafka config block with the flags that
// were set explicitly.
func (rt *runtimeState) applyAuditFlags(cmd *cobra.Command) {
	k := &rt.cfg.Audit.Kafka
	flags := cmd.Flags()
	if flags.Changed("audit-kafka-brokers") {
		k.Brokers = rt.auditBrokers
	}
	if flags.Changed("audit-kafka-topic") {
		k.Topic = rt.auditTopic
	}
	if flags.Changed("audit-kafka-compression") {
		k.Compression = rt.auditCompress
	}
	if flags.Changed("audit-kafka-tls") {
		k.TLS.Enabled = rt.auditTLS
	}
	if flags.Changed("audit-kafka-sasl-mechanism") {
		k.SASL.Mechanism = rt.auditSASLMech
	}
	if flags.Changed("audit-kafka-sasl-username") {
		k.SASL.Username = rt.auditSASLUser
	}
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) getenv(key string) string {
	if rt.lookup == nil {
		return ""
	}
	v, _ := rt.lookup(key)
	return v
}

// loadConfig reads the config file. A missing file is only an error when the
// path was chosen explicitly.
func (rt *runtimeState) loadConfig(explicit bool) error {
	path := rt.configPathValue()
	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(path)
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}

func (rt *runtimeState) OutputFormat() output.Format {
	f, err := output.ParseFormat(rt.outputFormat)
	if err != nil {
		return output.FormatText
	}
	return f
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

// StatusWriter is where per-recipient lines go: stdout for text output,
// the log stream when stdout carries a JSON or YAML report.
func (rt *runtimeState) StatusWriter() io.Writer {
	if rt.OutputFormat() != output.FormatText {
		if rt.logWriter != nil {
			return rt.logWriter
		}
		return os.Stderr
	}
	return rt.Writer()
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.logger != nil {
		return rt.logger
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) Config() *config.Config {
	if rt.cfg == nil {
		cfg := config.DefaultConfig()
		rt.cfg = &cfg
	}
	return rt.cfg
}
