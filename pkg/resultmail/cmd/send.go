package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksm-android/resultmail/pkg/audit"
	"github.com/ksm-android/resultmail/pkg/batch"
	"github.com/ksm-android/resultmail/pkg/mail"
	"github.com/ksm-android/resultmail/pkg/metrics"
	"github.com/ksm-android/resultmail/pkg/recipients"
	"github.com/ksm-android/resultmail/pkg/resultmail/config"
	"github.com/ksm-android/resultmail/pkg/resultmail/output"
	"github.com/ksm-android/resultmail/pkg/telemetry"
	"github.com/ksm-android/resultmail/pkg/version"
)

func NewSendCommand() *cobra.Command {
	var (
		tablePath string
		summary   bool
	)

	cmd := &cobra.Command{
		Use:       "send acceptance|rejection",
		Short:     "Mail every recipient of a table",
		Long:      "Reads the recipient table of the variant and sends one mail per row, in order. Credentials come from EMAIL and EMAIL_PASSWORD.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: variantNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			variant, err := mail.ParseVariant(args[0])
			if err != nil {
				return err
			}
			cfg := rt.Config()
			log := rt.Logger()

			if loaded, err := config.LoadDotEnv(rt.envFile); err != nil {
				return err
			} else if loaded {
				log.Infow("Loaded environment file", "path", rt.envFile)
			}

			path := tablePath
			if path == "" {
				path = tableFor(cfg, variant)
			}
			comma, err := cfg.Recipients.Comma()
			if err != nil {
				return err
			}

			recorder, err := rt.auditRecorder()
			if err != nil {
				return err
			}
			defer func() {
				if err := recorder.Close(); err != nil {
					log.Warnw("Failed to close audit sinks", "error", err)
				}
			}()

			tp, shutdown, err := telemetry.Init(cmd.Context(), telemetry.Options{
				Enabled:        rt.tracing,
				ServiceVersion: version.Version,
				Exporter:       rt.traceExporter,
				Endpoint:       rt.traceEndpoint,
				Insecure:       rt.traceInsecure,
				Writer:         rt.logWriter,
				Logger:         log,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(cmd.Context())); err != nil {
					log.Warnw("Failed to flush traces", "error", err)
				}
			}()

			runner, err := batch.NewRunner(batch.Options{
				Credentials:    config.CredentialsFromLookup(rt.lookup),
				Table:          recipients.Reader{Comma: comma},
				Renderer:       mail.NewRenderer(rt.escapeHTML),
				Transmitter:    rt.newTransmitter(cfg.Relay, log),
				SenderName:     cfg.Relay.SenderName,
				SendInterval:   cfg.SendInterval,
				Out:            rt.StatusWriter(),
				Audit:          recorder,
				Logger:         log,
				TracerProvider: tp,
			})
			if err != nil {
				return err
			}

			report, runErr := runner.Run(cmd.Context(), variant, path)
			rt.writeMetrics()

			if runErr != nil {
				// A missing table has already been reported and is not a failure of the command.
				if errors.Is(runErr, recipients.ErrTableNotFound) {
					return nil
				}
				return runErr
			}
			return rt.writeReport(report, summary)
		},
	}

	cmd.Flags().StringVar(&tablePath, "recipients", "", "Recipient table (default from config per variant)")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a table of all outcomes after the run (text output)")

	return cmd
}

func variantNames() []string {
	names := make([]string, 0, len(mail.Variants))
	for _, v := range mail.Variants {
		names = append(names, string(v))
	}
	return names
}

func tableFor(cfg *config.Config, v mail.Variant) string {
	if v == mail.Rejection {
		return cfg.Recipients.Rejection
	}
	return cfg.Recipients.Acceptance
}

// auditRecorder always logs audit events and adds a Kafka sink when brokers
// are configured.
func (rt *runtimeState) auditRecorder() (*audit.Recorder, error) {
	base := rt.Logger().Desugar()
	sinks := []audit.Sink{audit.NewLogSink(base)}
	if k := rt.Config().Audit.Kafka; k.Enabled() {
		sinkCfg, err := kafkaSinkConfig(k, rt.lookup)
		if err != nil {
			return nil, fmt.Errorf("failed to set up audit sink: %w", err)
		}
		kafkaSink, err := audit.NewKafkaSink(sinkCfg, base)
		if err != nil {
			return nil, fmt.Errorf("failed to set up audit sink: %w", err)
		}
		sinks = append(sinks, kafkaSink)
	}
	return audit.NewRecorder(base, sinks...), nil
}

// kafkaSinkConfig reads the PEM files of the TLS block and takes the SASL
// password from the environment.
func kafkaSinkConfig(k config.KafkaAudit, lookup config.LookupFunc) (audit.KafkaSinkConfig, error) {
	cfg := audit.KafkaSinkConfig{
		Brokers:          k.Brokers,
		Topic:            k.Topic,
		WriteTimeout:     k.WriteTimeout,
		RequiredAcks:     k.RequiredAcks,
		CompressionCodec: k.Compression,
	}

	if k.TLS.Enabled {
		tlsCfg := &audit.KafkaTLSConfig{Enabled: true, InsecureSkipVerify: k.TLS.InsecureSkipVerify}
		var err error
		if tlsCfg.CACert, err = readPEM(k.TLS.CAFile); err != nil {
			return cfg, err
		}
		if tlsCfg.ClientCert, err = readPEM(k.TLS.CertFile); err != nil {
			return cfg, err
		}
		if tlsCfg.ClientKey, err = readPEM(k.TLS.KeyFile); err != nil {
			return cfg, err
		}
		cfg.TLS = tlsCfg
	}

	if k.SASL.Mechanism != "" {
		password, _ := lookup(config.EnvKafkaPassword)
		if password == "" {
			return cfg, fmt.Errorf("%s must be set for SASL mechanism %s", config.EnvKafkaPassword, k.SASL.Mechanism)
		}
		cfg.SASL = &audit.KafkaSASLConfig{
			Mechanism: k.SASL.Mechanism,
			Username:  k.SASL.Username,
			Password:  password,
		}
	}
	return cfg, nil
}

func readPEM(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}

func (rt *runtimeState) writeMetrics() {
	if rt.metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(rt.metricsFile); err != nil {
		rt.Logger().Warnw("Failed to write metrics textfile", "path", rt.metricsFile, "error", err)
		return
	}
	rt.Logger().Debugw("Wrote metrics textfile", "path", rt.metricsFile)
}

func (rt *runtimeState) writeReport(report *batch.Report, summary bool) error {
	switch format := rt.OutputFormat(); format {
	case output.FormatJSON, output.FormatYAML:
		return output.WriteObject(rt.Writer(), format, report)
	default:
		if summary {
			output.WriteOutcomeTable(rt.Writer(), report.Rows())
			output.WriteSummary(rt.Writer(), report.Sent, report.Failed)
		}
		return nil
	}
}
