// Package dialog is the SMTP client state machine. One Engine.Run drives a
// configurable step sequence against a remote MX, trying ports in order,
// upgrading to TLS where the peer allows it, and reducing the reply stream
// to a deliverability answer.
//
// The engine owns exactly one socket at a time and guarantees its closure
// on every exit path, timeouts and cancellation included. It never sends
// message content: the dialog stops at RCPT TO (or VRFY) and quits.
package dialog

import (
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/optimode/reachkit/types"
)

// Dialer opens the raw TCP connection. Injectable for tests and for
// SOCKS5 proxying.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// SleepFunc waits between retry attempts. Injectable so tests can count
// backoffs instead of serving them.
type SleepFunc func(ctx context.Context, d time.Duration) error

// TLSPolicy controls both implicit TLS (port 465) and STARTTLS upgrades.
type TLSPolicy struct {
	// Disabled turns off TLS entirely: no implicit handshake, no upgrade.
	Disabled bool
	// RejectUnauthorized requires a verifiable certificate chain. Off by
	// default: most MX probing targets present certs for other names.
	RejectUnauthorized bool
	// MinVersion is a tls.VersionTLS* constant. Zero means TLS 1.2.
	MinVersion uint16
}

func (p TLSPolicy) config(serverName string) *tls.Config {
	minVersion := p.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !p.RejectUnauthorized,
		MinVersion:         minVersion,
	}
}

// Sequence is the ordered step list one dialog walks through.
type Sequence struct {
	Steps []types.Step
	// From is the envelope sender. Empty means the null sender <>,
	// which avoids triggering bounce loops during probes.
	From string
	// VrfyTarget overrides the VRFY argument. Empty means the probed
	// local part.
	VrfyTarget string
}

// DefaultSequence is the standard probe: greeting, EHLO, MAIL FROM with
// the null sender, RCPT TO. STARTTLS and VRFY join via the jump rules
// when the caller asks for them.
func DefaultSequence() Sequence {
	return Sequence{
		Steps: []types.Step{types.StepGreeting, types.StepEhlo, types.StepMailFrom, types.StepRcptTo},
	}
}

func (s Sequence) index(step types.Step) int {
	for i, st := range s.Steps {
		if st == step {
			return i
		}
	}
	return -1
}

// Options configures one Engine.
type Options struct {
	// Ports is the attempt order. Empty means no dialing at all: the
	// engine answers ConnectionError immediately.
	Ports []int
	// PreferredPort, when positive, is tried before Ports. It comes from
	// the per-domain port cache.
	PreferredPort int
	// StepTimeout bounds every connect, read and write. Zero means 3s.
	StepTimeout time.Duration
	// MaxRetries is the number of extra attempts per port after a
	// Timeout or ConnectionError outcome. Zero means exactly one attempt.
	MaxRetries int
	TLS        TLSPolicy
	// HelloName goes into EHLO. Empty means "localhost".
	HelloName string
	// UseVRFY allows the jump to VRFY on an unclassified RCPT 5xx.
	UseVRFY bool
	Sequence Sequence
	// CatchAllProbe repeats RCPT TO with a random local part after the
	// real one is accepted, to detect accept-everything domains.
	CatchAllProbe bool
	// Debug records the full transcript on the result.
	Debug  bool
	Logger zerolog.Logger

	Dialer Dialer
	Sleep  SleepFunc
	// RandomLocal generates the catch-all probe local part.
	RandomLocal func() string
}

const defaultStepTimeout = 3 * time.Second

func (o Options) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return defaultStepTimeout
	}
	return o.StepTimeout
}

func (o Options) helloName() string {
	if o.HelloName == "" {
		return "localhost"
	}
	return o.HelloName
}

// Result is the outcome of one Run.
type Result struct {
	// Connected is true once any port produced a TCP connection.
	Connected bool
	// HostExists is true once any port produced a 220 greeting.
	HostExists bool
	// EhloOK is true once EHLO was accepted; the winning port is worth
	// caching from that point on.
	EhloOK bool
	// TLS is true when the decisive dialog ran over TLS (implicit or
	// upgraded).
	TLS bool
	// Port is the port of the decisive (or last attempted) dialog.
	Port int
	// Code and Message are the decisive reply.
	Code    int
	Message string

	Deliverable types.Deliverable
	Kind        types.ErrorKind
	Severity    types.Severity
	CatchAll    bool
	FullInbox   bool
	// Retries counts backoff-delayed repeat attempts across all ports.
	Retries int
	// Transcript is the port-and-direction-prefixed dialog log. Only
	// populated under Debug.
	Transcript []string
}

func (r Result) decisive() bool {
	if r.Deliverable != types.DeliverableUnknown {
		return true
	}
	switch r.Kind {
	case types.KindInvalid, types.KindFullInbox, types.KindBlocked, types.KindPolicyRejection,
		types.KindGreyListed, types.KindRateLimited, types.KindDisabled:
		return true
	}
	return false
}

func (r Result) retryable() bool {
	return r.Kind == types.KindTimeout || r.Kind == types.KindConnectionError
}

// Engine drives SMTP dialogs.
type Engine struct {
	opts Options
}

// New builds an Engine. Missing seams get their production defaults.
func New(opts Options) *Engine {
	if opts.Dialer == nil {
		opts.Dialer = func(ctx context.Context, network, address string) (net.Conn, error) {
			d := &net.Dialer{Timeout: opts.stepTimeout()}
			return d.DialContext(ctx, network, address)
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	if opts.RandomLocal == nil {
		opts.RandomLocal = randomLocal
	}
	if len(opts.Sequence.Steps) == 0 {
		opts.Sequence = DefaultSequence()
	}
	return &Engine{opts: opts}
}

// backoff is the delay before retry attempt n (1-based): 1s, 2s, 4s,
// capped at 5s.
func backoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Run verifies local@domain against mxHost. It walks the port order,
// retries transient failures with exponential backoff, and returns the
// first decisive outcome. Non-decisive outcomes from the last port are
// returned as-is.
func (e *Engine) Run(ctx context.Context, local, domain, mxHost string) Result {
	ports := e.portOrder()
	if len(ports) == 0 {
		return Result{
			Deliverable: types.DeliverableUnknown,
			Kind:        types.KindConnectionError,
			Severity:    types.SeverityPermanent,
			Message:     "no SMTP ports configured",
		}
	}

	var (
		last       Result
		retries    int
		transcript []string
		connected  bool
		hostExists bool
		ehloOK     bool
	)

	for _, port := range ports {
		for attempt := 1; ; attempt++ {
			if ctx.Err() != nil {
				last.Kind = types.KindTimeout
				last.Severity = types.SeverityTemporary
				last.Deliverable = types.DeliverableUnknown
				last.Message = "verification cancelled"
				break
			}

			res := e.attempt(ctx, local, domain, mxHost, port)
			transcript = append(transcript, res.Transcript...)
			connected = connected || res.Connected
			hostExists = hostExists || res.HostExists
			ehloOK = ehloOK || res.EhloOK
			last = res

			if res.decisive() {
				last.Retries = retries
				last.Transcript = transcript
				last.Connected = connected
				last.HostExists = hostExists
				last.EhloOK = ehloOK
				return last
			}
			if !res.retryable() || attempt > e.opts.MaxRetries {
				break
			}
			retries++
			if err := e.opts.Sleep(ctx, backoff(attempt)); err != nil {
				break
			}
		}
	}

	last.Retries = retries
	last.Transcript = transcript
	last.Connected = connected
	last.HostExists = hostExists
	last.EhloOK = ehloOK
	return last
}

// portOrder puts the cached preferred port first, then the configured
// list minus duplicates.
func (e *Engine) portOrder() []int {
	if e.opts.PreferredPort <= 0 {
		return e.opts.Ports
	}
	out := make([]int, 0, len(e.opts.Ports)+1)
	out = append(out, e.opts.PreferredPort)
	for _, p := range e.opts.Ports {
		if p != e.opts.PreferredPort {
			out = append(out, p)
		}
	}
	return out
}

// attempt runs one complete dialog on one port.
func (e *Engine) attempt(ctx context.Context, local, domain, mxHost string, port int) Result {
	addr := net.JoinHostPort(mxHost, strconv.Itoa(port))

	conn, err := e.opts.Dialer(ctx, "tcp", addr)
	if err != nil {
		kind, severity := classifyTransport(ctx, err)
		return Result{
			Port:        port,
			Deliverable: types.DeliverableUnknown,
			Kind:        kind,
			Severity:    severity,
			Message:     err.Error(),
		}
	}

	s := &session{
		engine: e,
		conn:   conn,
		port:   port,
		local:  local,
		domain: domain,
		mxHost: mxHost,
	}
	defer s.quitAndClose()

	// Port 465 speaks TLS from the first byte (RFC 8314).
	if port == 465 && !e.opts.TLS.Disabled {
		if err := s.upgradeTLS(ctx); err != nil {
			kind, severity := classifyTransport(ctx, err)
			res := s.result()
			res.Kind = kind
			res.Severity = severity
			res.Deliverable = types.DeliverableUnknown
			res.Message = err.Error()
			return res
		}
	} else {
		s.r = newReplyReader(conn)
	}

	return s.run(ctx)
}

// classifyTransport maps an I/O failure onto the taxonomy.
func classifyTransport(ctx context.Context, err error) (types.ErrorKind, types.Severity) {
	if ctx.Err() != nil {
		return types.KindTimeout, types.SeverityTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.KindTimeout, types.SeverityTemporary
	}
	return types.KindConnectionError, types.SeverityTemporary
}

const localAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomLocal generates the catch-all probe's 16-character local part.
func randomLocal() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = localAlphabet[rand.Intn(len(localAlphabet))]
	}
	return string(b)
}
