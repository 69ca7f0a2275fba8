package mail

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testRelayOptions select which SMTP extensions the test relay offers and
// which commands it refuses.
type testRelayOptions struct {
	StartTLS   bool
	Auth       bool
	RejectAuth bool
	RejectRcpt bool
}

// relaySession is what the test relay saw during one connection.
type relaySession struct {
	TLS      bool
	AuthUser string
	AuthPass string
	From     string
	To       []string
	Data     string
}

// testRelay is a minimal SMTP server on a random local port. It only
// implements the commands net/smtp issues for a single submission.
type testRelay struct {
	t           *testing.T
	ln          net.Listener
	opts        testRelayOptions
	tlsConfig   *tls.Config
	wg          sync.WaitGroup
	mu          sync.Mutex
	sessions    []relaySession
	connections atomic.Int64
}

func startTestRelay(t *testing.T, opts testRelayOptions) *testRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	r := &testRelay{t: t, ln: ln, opts: opts}
	if opts.StartTLS {
		r.tlsConfig = selfSignedTLSConfig(t)
	}

	r.wg.Add(1)
	go r.acceptLoop()
	t.Cleanup(r.Stop)
	return r
}

func (r *testRelay) Host() string {
	return "127.0.0.1"
}

func (r *testRelay) Port() int {
	return r.ln.Addr().(*net.TCPAddr).Port
}

func (r *testRelay) Connections() int64 {
	return r.connections.Load()
}

func (r *testRelay) Sessions() []relaySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]relaySession, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *testRelay) Stop() {
	_ = r.ln.Close()
	r.wg.Wait()
}

func (r *testRelay) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.connections.Add(1)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.serve(conn)
		}()
	}
}

func (r *testRelay) serve(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	var (
		rw   io.ReadWriter = conn
		rd                 = bufio.NewReader(conn)
		sess relaySession
	)
	reply := func(format string, args ...any) {
		_, _ = fmt.Fprintf(rw, format+"\r\n", args...)
	}
	defer func() {
		if sess.From != "" || sess.AuthUser != "" {
			r.mu.Lock()
			r.sessions = append(r.sessions, sess)
			r.mu.Unlock()
		}
	}()

	reply("220 localhost Test SMTP Service Ready")
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			lines := []string{"localhost Hello"}
			if r.opts.StartTLS && !sess.TLS {
				lines = append(lines, "STARTTLS")
			}
			if r.opts.Auth && (sess.TLS || !r.opts.StartTLS) {
				lines = append(lines, "AUTH PLAIN")
			}
			lines = append(lines, "OK")
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				reply("250%s%s", sep, l)
			}
		case upper == "STARTTLS":
			reply("220 2.0.0 Ready to start TLS")
			tlsConn := tls.Server(conn, r.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			rw = tlsConn
			rd = bufio.NewReader(tlsConn)
			sess.TLS = true
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			if r.opts.RejectAuth {
				reply("535 5.7.8 Authentication credentials invalid")
				continue
			}
			parts := strings.Fields(line)
			if len(parts) == 3 {
				if raw, err := base64.StdEncoding.DecodeString(parts[2]); err == nil {
					creds := strings.Split(string(raw), "\x00")
					if len(creds) == 3 {
						sess.AuthUser, sess.AuthPass = creds[1], creds[2]
					}
				}
			}
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			sess.From = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			if r.opts.RejectRcpt {
				reply("550 5.1.1 User unknown")
				continue
			}
			sess.To = append(sess.To, strings.Trim(line[len("RCPT TO:"):], "<> "))
			reply("250 OK")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				dline, derr := rd.ReadString('\n')
				if derr != nil {
					return
				}
				if strings.TrimSpace(dline) == "." {
					break
				}
				b.WriteString(dline)
			}
			sess.Data = b.String()
			reply("250 OK: queued as 12345")
		case upper == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}
