package dialog_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	crand "crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/reachkit/internal/dialog"
	"github.com/optimode/reachkit/types"
)

// scriptedServer answers commands on one end of a net.Pipe. respond gets
// the full command line and returns the reply (multi-line replies are
// CRLF-joined by the caller). A nil reply closes the connection.
func scriptedServer(server net.Conn, banner string, respond func(cmd string) string) {
	defer func() { _ = server.Close() }()

	_, _ = fmt.Fprintf(server, "%s\r\n", banner)

	r := bufio.NewReader(server)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(cmd, "QUIT") {
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		}

		resp := respond(cmd)
		if resp == "" {
			return
		}
		_, _ = fmt.Fprintf(server, "%s\r\n", resp)
	}
}

// pipeDialer returns a Dialer whose client side talks to a scripted
// server.
func pipeDialer(banner string, respond func(cmd string) string) dialog.Dialer {
	return func(_ context.Context, _, _ string) (net.Conn, error) {
		client, server := net.Pipe()
		go scriptedServer(server, banner, respond)
		return client, nil
	}
}

// standardResponses answers the happy path up to RCPT TO.
func standardResponses(rcptReply string) func(string) string {
	return func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250 mx.example.com"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return rcptReply
		}
		return "502 command not implemented"
	}
}

func newEngine(opts dialog.Options) *dialog.Engine {
	if opts.Ports == nil {
		opts.Ports = []int{25}
	}
	if opts.StepTimeout == 0 {
		opts.StepTimeout = 2 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	return dialog.New(opts)
}

func TestRun_RcptAccepted(t *testing.T) {
	e := newEngine(dialog.Options{
		Dialer: pipeDialer("220 mx.example.com ESMTP", standardResponses("250 2.1.5 OK")),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	assert.True(t, res.Connected)
	assert.True(t, res.HostExists)
	assert.True(t, res.EhloOK)
	assert.Equal(t, 25, res.Port)
	assert.Equal(t, 250, res.Code)
	assert.False(t, res.CatchAll)
}

func TestRun_RcptRejections(t *testing.T) {
	tests := []struct {
		name        string
		rcptReply   string
		deliverable types.Deliverable
		kind        types.ErrorKind
		fullInbox   bool
	}{
		{
			name:        "user unknown is invalid",
			rcptReply:   "550 5.1.1 User unknown",
			deliverable: types.DeliverableNo,
			kind:        types.KindInvalid,
		},
		{
			name:        "551 is invalid",
			rcptReply:   "551 5.1.6 User not local",
			deliverable: types.DeliverableNo,
			kind:        types.KindInvalid,
		},
		{
			name:        "spam rejection is policy not invalid",
			rcptReply:   "550 5.7.1 Rejected by policy, listed at spamhaus",
			deliverable: types.DeliverableUnknown,
			kind:        types.KindPolicyRejection,
		},
		{
			name:        "552 over quota is full inbox",
			rcptReply:   "552 5.2.2 Mailbox over quota",
			deliverable: types.DeliverableNo,
			kind:        types.KindFullInbox,
			fullInbox:   true,
		},
		{
			name:        "452 is full inbox",
			rcptReply:   "452 4.2.2 Insufficient storage",
			deliverable: types.DeliverableNo,
			kind:        types.KindFullInbox,
			fullInbox:   true,
		},
		{
			name:        "greylisting",
			rcptReply:   "450 4.7.1 Greylisted, try again in 5 minutes",
			deliverable: types.DeliverableUnknown,
			kind:        types.KindGreyListed,
		},
		{
			name:        "451 is rate limited",
			rcptReply:   "451 4.3.0 Too much traffic",
			deliverable: types.DeliverableUnknown,
			kind:        types.KindRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(dialog.Options{
				Dialer: pipeDialer("220 mx ESMTP", standardResponses(tt.rcptReply)),
			})

			res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

			assert.Equal(t, tt.deliverable, res.Deliverable)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.fullInbox, res.FullInbox)
		})
	}
}

func TestRun_MultilineEhloCapabilityScan(t *testing.T) {
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250-mx.example.com greets you\r\n250-SIZE 35882577\r\n250-vrfy\r\n250 8BITMIME"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			// Unclassified 5xx triggers the VRFY jump.
			return "554 5.7.1 No thanks"
		case strings.HasPrefix(cmd, "VRFY"):
			return "250 user@example.com"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		UseVRFY: true,
		Sequence: dialog.Sequence{
			Steps: []types.Step{types.StepGreeting, types.StepEhlo, types.StepMailFrom, types.StepRcptTo, types.StepVrfy},
		},
		Dialer: pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable, "VRFY 250 after RCPT 554 means deliverable")
	assert.Equal(t, 250, res.Code)
}

func TestRun_VrfyNotInSequenceMeansNoJump(t *testing.T) {
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250-mx.example.com\r\n250 VRFY"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return "554 5.7.1 No thanks"
		case strings.HasPrefix(cmd, "VRFY"):
			return "250 should never be sent"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		UseVRFY: true,
		Dialer:  pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableUnknown, res.Deliverable)
	assert.Equal(t, types.KindUnknown, res.Kind)
}

func TestRun_CatchAllDetected(t *testing.T) {
	var rcpts atomic.Int32
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250 mx"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			rcpts.Add(1)
			return "250 accepted"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		CatchAllProbe: true,
		RandomLocal:   func() string { return "zzzzrandomzzzz00" },
		Dialer:        pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	assert.True(t, res.CatchAll)
	assert.Equal(t, int32(2), rcpts.Load(), "one real and one random RCPT")
}

func TestRun_CatchAllAbsent(t *testing.T) {
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250 mx"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO:<user@"):
			return "250 accepted"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return "550 5.1.1 No such user"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		CatchAllProbe: true,
		Dialer:        pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	assert.False(t, res.CatchAll)
}

func TestRun_EmptyPortList(t *testing.T) {
	e := dialog.New(dialog.Options{
		Ports: []int{},
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			t.Fatal("dialer must not be called with no ports")
			return nil, nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableUnknown, res.Deliverable)
	assert.Equal(t, types.KindConnectionError, res.Kind)
	assert.False(t, res.Connected)
}

func TestRun_RetriesWithBackoff(t *testing.T) {
	var dials atomic.Int32
	var sleeps []time.Duration

	e := dialog.New(dialog.Options{
		Ports:      []int{25},
		MaxRetries: 2,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			dials.Add(1)
			return nil, fmt.Errorf("connection refused")
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.KindConnectionError, res.Kind)
	assert.Equal(t, int32(3), dials.Load(), "one attempt plus two retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	assert.Equal(t, 2, res.Retries)
}

func TestRun_MaxRetriesZeroMeansOneAttemptPerPort(t *testing.T) {
	var dials atomic.Int32

	e := dialog.New(dialog.Options{
		Ports:      []int{25, 587},
		MaxRetries: 0,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			dials.Add(1)
			return nil, fmt.Errorf("connection refused")
		},
		Sleep: func(context.Context, time.Duration) error { return nil },
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.KindConnectionError, res.Kind)
	assert.Equal(t, int32(2), dials.Load(), "exactly one attempt per port")
	assert.Zero(t, res.Retries)
}

func TestRun_DefinitiveVerdictStopsPortLoop(t *testing.T) {
	var dials atomic.Int32

	e := dialog.New(dialog.Options{
		Ports:       []int{25, 587, 465},
		StepTimeout: 2 * time.Second,
		Dialer: func(ctx context.Context, _, addr string) (net.Conn, error) {
			dials.Add(1)
			client, server := net.Pipe()
			go scriptedServer(server, "220 mx ESMTP", standardResponses("550 5.1.1 User unknown"))
			return client, nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableNo, res.Deliverable)
	assert.Equal(t, int32(1), dials.Load(), "first port already produced a verdict")
}

func TestRun_PreferredPortGoesFirst(t *testing.T) {
	var addrs []string

	e := dialog.New(dialog.Options{
		Ports:         []int{25, 587},
		PreferredPort: 587,
		StepTimeout:   2 * time.Second,
		Dialer: func(_ context.Context, _, addr string) (net.Conn, error) {
			addrs = append(addrs, addr)
			client, server := net.Pipe()
			go scriptedServer(server, "220 mx ESMTP", standardResponses("250 OK"))
			return client, nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	require.Len(t, addrs, 1)
	assert.Equal(t, "mx.example.com:587", addrs[0])
	assert.Equal(t, 587, res.Port)
}

func TestRun_StepTimeout(t *testing.T) {
	e := dialog.New(dialog.Options{
		Ports:       []int{25},
		StepTimeout: 50 * time.Millisecond,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			client, server := net.Pipe()
			// Server never sends a greeting.
			go func() {
				time.Sleep(2 * time.Second)
				_ = server.Close()
			}()
			return client, nil
		},
		Sleep: func(context.Context, time.Duration) error { return nil },
	})

	start := time.Now()
	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.KindTimeout, res.Kind)
	assert.Equal(t, types.DeliverableUnknown, res.Deliverable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_NoGreetingAdvancesPortLoop(t *testing.T) {
	var dials atomic.Int32

	e := dialog.New(dialog.Options{
		Ports:       []int{25, 587},
		StepTimeout: 2 * time.Second,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			dials.Add(1)
			client, server := net.Pipe()
			go scriptedServer(server, "554 go away", standardResponses("250 OK"))
			return client, nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableUnknown, res.Deliverable)
	assert.Equal(t, types.KindUnknown, res.Kind)
	assert.Contains(t, res.Message, "no_greeting")
	assert.Equal(t, int32(2), dials.Load(), "a refused greeting is not decisive")
}

func TestRun_StartTLSRefusalContinuesPlaintext(t *testing.T) {
	var sawStartTLS atomic.Bool
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250-mx.example.com\r\n250-STARTTLS\r\n250 OK"
		case strings.HasPrefix(cmd, "STARTTLS"):
			sawStartTLS.Store(true)
			return "454 4.7.0 TLS not available right now"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return "250 OK"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		Sequence: dialog.Sequence{
			Steps: []types.Step{types.StepGreeting, types.StepEhlo, types.StepStartTLS, types.StepMailFrom, types.StepRcptTo},
		},
		Dialer: pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.True(t, sawStartTLS.Load())
	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	assert.False(t, res.TLS)
}

func TestRun_StartTLSNotAttemptedWhenTLSDisabled(t *testing.T) {
	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			return "250-mx.example.com\r\n250-STARTTLS\r\n250 OK"
		case strings.HasPrefix(cmd, "STARTTLS"):
			return "220 but you said no TLS"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return "250 OK"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		TLS: dialog.TLSPolicy{Disabled: true},
		Sequence: dialog.Sequence{
			Steps: []types.Step{types.StepGreeting, types.StepEhlo, types.StepStartTLS, types.StepMailFrom, types.StepRcptTo},
		},
		Dialer: pipeDialer("220 mx ESMTP", respond),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableYes, res.Deliverable)
	assert.False(t, res.TLS)
}

// startTLSServer drives the server side of a STARTTLS upgrade, then keeps
// answering over the encrypted channel.
func startTLSServer(t *testing.T, server net.Conn, cert tls.Certificate, respond func(cmd string) string) {
	t.Helper()
	defer func() { _ = server.Close() }()

	_, _ = fmt.Fprintf(server, "220 mx.example.com ESMTP\r\n")

	r := bufio.NewReader(server)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(cmd, "STARTTLS") {
			_, _ = fmt.Fprintf(server, "220 2.0.0 Ready to start TLS\r\n")
			tlsConn := tls.Server(server, &tls.Config{Certificates: []tls.Certificate{cert}})
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			scriptedServerLoop(tlsConn, respond)
			return
		}
		if strings.HasPrefix(cmd, "QUIT") {
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		}
		_, _ = fmt.Fprintf(server, "%s\r\n", respond(cmd))
	}
}

func scriptedServerLoop(conn net.Conn, respond func(cmd string) string) {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(cmd, "QUIT") {
			_, _ = fmt.Fprintf(conn, "221 Bye\r\n")
			return
		}
		_, _ = fmt.Fprintf(conn, "%s\r\n", respond(cmd))
	}
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mx.example.com"},
		DNSNames:     []string{"mx.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(crand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestRun_StartTLSUpgradeAndReEhlo(t *testing.T) {
	cert := selfSignedCert(t)
	var ehlos atomic.Int32

	respond := func(cmd string) string {
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			ehlos.Add(1)
			if ehlos.Load() == 1 {
				return "250-mx.example.com\r\n250-STARTTLS\r\n250 OK"
			}
			return "250-mx.example.com\r\n250 OK"
		case strings.HasPrefix(cmd, "MAIL FROM"):
			return "250 OK"
		case strings.HasPrefix(cmd, "RCPT TO"):
			return "550 5.1.1 User unknown"
		}
		return "502 nope"
	}

	e := newEngine(dialog.Options{
		Sequence: dialog.Sequence{
			Steps: []types.Step{types.StepGreeting, types.StepEhlo, types.StepStartTLS, types.StepMailFrom, types.StepRcptTo},
		},
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			client, server := net.Pipe()
			go startTLSServer(t, server, cert, respond)
			return client, nil
		},
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	assert.Equal(t, types.DeliverableNo, res.Deliverable)
	assert.Equal(t, types.KindInvalid, res.Kind)
	assert.True(t, res.TLS, "verdict came over the upgraded channel")
	assert.Equal(t, int32(2), ehlos.Load(), "EHLO is re-issued after the TLS handshake")
}

func TestRun_DebugTranscript(t *testing.T) {
	e := newEngine(dialog.Options{
		Debug:  true,
		Dialer: pipeDialer("220 mx ESMTP", standardResponses("250 OK")),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")

	require.NotEmpty(t, res.Transcript)
	assert.Contains(t, res.Transcript[0], "[25] <- 220 mx ESMTP")
	joined := strings.Join(res.Transcript, "\n")
	assert.Contains(t, joined, "-> EHLO")
	assert.Contains(t, joined, "-> RCPT TO:<user@example.com>")
}

func TestRun_NoTranscriptWithoutDebug(t *testing.T) {
	e := newEngine(dialog.Options{
		Dialer: pipeDialer("220 mx ESMTP", standardResponses("250 OK")),
	})

	res := e.Run(context.Background(), "user", "example.com", "mx.example.com")
	assert.Empty(t, res.Transcript)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(dialog.Options{
		Dialer: pipeDialer("220 mx ESMTP", standardResponses("250 OK")),
	})

	res := e.Run(ctx, "user", "example.com", "mx.example.com")
	assert.Equal(t, types.KindTimeout, res.Kind)
	assert.Equal(t, types.DeliverableUnknown, res.Deliverable)
}
