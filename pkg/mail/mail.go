package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	netmail "net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/ksm-android/resultmail/pkg/metrics"
	"github.com/ksm-android/resultmail/pkg/resultmail/config"
)

var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrStartTLSUnsupported = errors.New("mail relay does not offer STARTTLS")
	ErrStartTLSFailed      = errors.New("STARTTLS negotiation failed")
	ErrAuthUnsupported     = errors.New("mail relay does not offer AUTH")
	ErrAuthFailed          = errors.New("authentication failed")
)

// Transmitter delivers a single message. Implementations report every
// failure through the Result instead of an error return.
type Transmitter interface {
	Send(ctx context.Context, creds config.Credentials, msg Message) Result
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SMTPTransmitter opens a fresh session to the relay for every message:
// connect, STARTTLS, AUTH PLAIN, submit, QUIT.
type SMTPTransmitter struct {
	relay  config.Relay
	logger *zap.SugaredLogger
	tracer trace.Tracer
	dial   dialFunc
}

func NewSMTPTransmitter(relay config.Relay, logger *zap.SugaredLogger) *SMTPTransmitter {
	logger.Debugw("Initializing mail transmitter",
		"host", relay.Host,
		"port", relay.Port,
		"allowInsecure", relay.AllowInsecure)
	if relay.AllowInsecure {
		logger.Warnw("allow-insecure is enabled; mails may be sent without TLS or authentication", "host", relay.Host)
	}
	if relay.InsecureSkipTLSVerify {
		logger.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "host", relay.Host)
	}
	d := &net.Dialer{Timeout: relay.DialTimeout}
	return &SMTPTransmitter{
		relay:  relay,
		logger: logger.Named("mail"),
		tracer: otel.Tracer("github.com/ksm-android/resultmail/pkg/mail"),
		dial:   d.DialContext,
	}
}

func (s *SMTPTransmitter) Send(ctx context.Context, creds config.Credentials, msg Message) Result {
	log := s.logger.With("recipient", msg.To)
	ctx, span := s.tracer.Start(ctx, "smtp.send", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("server.address", s.relay.Host),
		attribute.Int("server.port", s.relay.Port),
	))
	defer span.End()

	err := s.send(ctx, creds, msg)
	if err != nil {
		reason := classifySendError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		log.Errorw("Error sending email", "error", err, "reason", reason)
		metrics.MailSendFailure.WithLabelValues(s.relay.Host, reason).Inc()
		return Failed(err)
	}

	log.Infow("Mail accepted by relay", "host", s.relay.Host)
	metrics.MailSendSuccess.WithLabelValues(s.relay.Host).Inc()
	return Delivered()
}

func (s *SMTPTransmitter) send(ctx context.Context, creds config.Credentials, msg Message) error {
	if _, err := netmail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, msg.To, err)
	}
	if _, err := netmail.ParseAddress(msg.From); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, msg.From, err)
	}

	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.From, msg.FromName)
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	// multipart/alternative: plain text first, HTML as the preferred part.
	m.SetBody("text/plain", msg.TextBody)
	m.AddAlternative("text/html", msg.HTMLBody)

	return s.deliver(ctx, creds, m)
}

// deliver runs one SMTP session. The connection is closed on every path,
// and also when ctx is cancelled mid-session.
func (s *SMTPTransmitter) deliver(ctx context.Context, creds config.Credentials, m *gomail.Message) error {
	addr := net.JoinHostPort(s.relay.Host, strconv.Itoa(s.relay.Port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.relay.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake with %s failed: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{
			ServerName:         s.relay.Host,
			InsecureSkipVerify: s.relay.InsecureSkipTLSVerify, //nolint:gosec // opt-in for private relays
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("%w: %w", ErrStartTLSFailed, err)
		}
	} else if !s.relay.AllowInsecure {
		return ErrStartTLSUnsupported
	}

	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", creds.SenderAddress, creds.SenderSecret, s.relay.Host)); err != nil {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	} else if !s.relay.AllowInsecure {
		return ErrAuthUnsupported
	}

	// gomail.Send flattens the cause into a string, so keep the original
	// error around for classification.
	var submitErr error
	submit := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		submitErr = submitTo(c, from, to, msg)
		return submitErr
	})
	if err := gomail.Send(submit, m); err != nil {
		if submitErr != nil {
			err = submitErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return c.Quit()
}

func submitTo(c *smtp.Client, from string, to []string, msg io.WriterTo) error {
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// classifySendError buckets failures for the failure counter.
func classifySendError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrInvalidAddress):
		return "address"
	case errors.Is(err, ErrStartTLSUnsupported), errors.Is(err, ErrStartTLSFailed):
		return "tls"
	case errors.Is(err, ErrAuthUnsupported), errors.Is(err, ErrAuthFailed):
		return "auth"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return "rejected"
	}
	return "smtp"
}
