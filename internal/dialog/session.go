package dialog

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/optimode/reachkit/types"
)

// policyRe separates "this mailbox does not exist" rejections from "we do
// not like you" rejections on the same 550. A policy bounce proves nothing
// about the address.
var policyRe = regexp.MustCompile(`(?i)spam|policy|rbl|blocked`)

var greylistRe = regexp.MustCompile(`(?i)greylist|try again`)

// session is one dialog over one socket. The socket's transport may be
// swapped from plain TCP to TLS mid-dialog; the step machine is identical
// on both sides of the upgrade.
type session struct {
	engine *Engine
	conn   net.Conn
	r      *replyReader
	port   int

	local  string
	domain string
	mxHost string

	tlsApplied       bool
	supportsStartTLS bool
	supportsVRFY     bool
	hostExists       bool
	ehloOK           bool
	quitDone         bool

	transcript []string
}

// result is the base outcome carrying the session's accumulated state.
func (s *session) result() Result {
	return Result{
		Connected:   true,
		HostExists:  s.hostExists,
		EhloOK:      s.ehloOK,
		TLS:         s.tlsApplied,
		Port:        s.port,
		Deliverable: types.DeliverableUnknown,
		Transcript:  s.transcript,
	}
}

func (s *session) trace(dir, line string) {
	if !s.engine.opts.Debug {
		return
	}
	entry := fmt.Sprintf("[%d] %s %s", s.port, dir, line)
	s.transcript = append(s.transcript, entry)
	s.engine.opts.Logger.Debug().
		Int("port", s.port).
		Str("mx", s.mxHost).
		Msg(entry)
}

// deadline applies the per-step budget, tightened by the caller's context
// deadline when that is sooner.
func (s *session) deadline(ctx context.Context) {
	d := time.Now().Add(s.engine.opts.stepTimeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	_ = s.conn.SetDeadline(d)
}

func (s *session) read(ctx context.Context) (reply, error) {
	s.deadline(ctx)
	rep, err := s.r.readReply()
	if err != nil {
		return reply{}, err
	}
	for _, line := range rep.lines {
		s.trace("<-", line)
	}
	return rep, nil
}

func (s *session) send(ctx context.Context, command string) error {
	s.deadline(ctx)
	if _, err := s.conn.Write([]byte(command + "\r\n")); err != nil {
		return err
	}
	s.trace("->", command)
	return nil
}

func (s *session) cmd(ctx context.Context, command string) (reply, error) {
	if err := s.send(ctx, command); err != nil {
		return reply{}, err
	}
	return s.read(ctx)
}

// upgradeTLS wraps the live socket in TLS, using the MX hostname as SNI.
// The reply reader is rebuilt afterwards so no pre-TLS buffered bytes can
// be read back as post-TLS data.
func (s *session) upgradeTLS(ctx context.Context) error {
	cfg := s.engine.opts.TLS.config(s.mxHost)
	s.deadline(ctx)
	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return err
	}
	s.conn = tlsConn
	s.r = newReplyReader(tlsConn)
	s.tlsApplied = true
	return nil
}

// quitAndClose is the guaranteed cleanup: best-effort QUIT on a live
// socket, then close. It never blocks longer than the grace window.
func (s *session) quitAndClose() {
	if !s.quitDone {
		_ = s.conn.SetDeadline(time.Now().Add(100 * time.Millisecond))
		_, _ = s.conn.Write([]byte("QUIT\r\n"))
	}
	_ = s.conn.Close()
}

// run walks the configured step sequence. Decisive classifications come
// only out of RCPT TO and VRFY; everything before them either advances or
// aborts the attempt.
func (s *session) run(ctx context.Context) Result {
	seq := s.engine.opts.Sequence
	wantTLS := !s.engine.opts.TLS.Disabled

	i := 0
	for i < len(seq.Steps) {
		if ctx.Err() != nil {
			return s.fail(types.KindTimeout, types.SeverityTemporary, "verification cancelled")
		}

		switch seq.Steps[i] {
		case types.StepGreeting:
			rep, err := s.read(ctx)
			if err != nil {
				return s.transport(ctx, err)
			}
			if rep.code != 220 {
				return s.inconclusive(rep, "no_greeting")
			}
			s.hostExists = true
			i++

		case types.StepEhlo:
			rep, err := s.cmd(ctx, "EHLO "+s.engine.opts.helloName())
			if err != nil {
				return s.transport(ctx, err)
			}
			if rep.code != 250 {
				return s.inconclusive(rep, "ehlo_rejected")
			}
			s.ehloOK = true
			s.supportsStartTLS = rep.containsCapability("STARTTLS")
			s.supportsVRFY = rep.containsCapability("VRFY")
			if wantTLS && !s.tlsApplied && s.supportsStartTLS {
				if j := seq.index(types.StepStartTLS); j >= 0 {
					i = j
					continue
				}
			}
			i++

		case types.StepStartTLS:
			if s.tlsApplied || !wantTLS || !s.supportsStartTLS {
				i++
				continue
			}
			rep, err := s.cmd(ctx, "STARTTLS")
			if err != nil {
				return s.transport(ctx, err)
			}
			if rep.code != 220 {
				// Opportunistic posture: a refused upgrade keeps the
				// dialog in plaintext rather than aborting it.
				i++
				continue
			}
			if err := s.upgradeTLS(ctx); err != nil {
				return s.transport(ctx, err)
			}
			// RFC 3207 section 4.2: forget pre-TLS capabilities and
			// re-issue EHLO after the handshake.
			s.supportsStartTLS = false
			s.supportsVRFY = false
			if j := seq.index(types.StepEhlo); j >= 0 {
				i = j
				continue
			}
			i++

		case types.StepMailFrom:
			rep, err := s.cmd(ctx, "MAIL FROM:<"+seq.From+">")
			if err != nil {
				return s.transport(ctx, err)
			}
			if rep.code != 250 {
				return s.inconclusive(rep, "mail_from_rejected")
			}
			i++

		case types.StepRcptTo:
			return s.rcptTo(ctx)

		case types.StepVrfy:
			return s.vrfy(ctx)

		case types.StepQuit:
			if rep, err := s.cmd(ctx, "QUIT"); err == nil && rep.code == 221 {
				s.quitDone = true
			}
			i++

		default:
			i++
		}
	}

	return s.fail(types.KindUnknown, types.SeverityUnknown, "sequence ended without a decisive step")
}

// rcptTo classifies the server's answer for the real recipient. Every
// branch is decisive: once the server has spoken about the mailbox, more
// ports will not say anything different.
func (s *session) rcptTo(ctx context.Context) Result {
	rep, err := s.cmd(ctx, "RCPT TO:<"+s.local+"@"+s.domain+">")
	if err != nil {
		return s.transport(ctx, err)
	}

	res := s.result()
	res.Code = rep.code
	res.Message = rep.full()

	switch {
	case rep.code == 250 || rep.code == 251:
		res.Deliverable = types.DeliverableYes
		if s.engine.opts.CatchAllProbe {
			res.CatchAll = s.probeCatchAll(ctx)
			res.TLS = s.tlsApplied
		}
		return res

	case rep.code == 550 || rep.code == 551 || rep.code == 553:
		if policyRe.MatchString(res.Message) {
			res.Kind = types.KindPolicyRejection
			res.Severity = types.SeverityPermanent
			return res
		}
		res.Deliverable = types.DeliverableNo
		res.Kind = types.KindInvalid
		res.Severity = types.SeverityPermanent
		return res

	case rep.code == 552 || rep.code == 452:
		res.Deliverable = types.DeliverableNo
		res.Kind = types.KindFullInbox
		res.FullInbox = true
		res.Severity = types.SeverityTemporary
		return res

	case rep.code >= 400 && rep.code < 500:
		res.Severity = types.SeverityTemporary
		switch {
		case greylistRe.MatchString(res.Message):
			res.Kind = types.KindGreyListed
		case rep.code == 450 || rep.code == 451:
			res.Kind = types.KindRateLimited
		default:
			res.Kind = types.KindUnknown
		}
		return res

	case rep.code >= 500:
		if s.engine.opts.UseVRFY && s.supportsVRFY && s.engine.opts.Sequence.index(types.StepVrfy) >= 0 {
			return s.vrfy(ctx)
		}
		res.Kind = types.KindUnknown
		res.Severity = types.SeverityUnknown
		return res
	}

	res.Kind = types.KindUnknown
	res.Severity = types.SeverityUnknown
	return res
}

// probeCatchAll sends one more RCPT TO for a random 16-character local
// part in the same envelope. Acceptance means the domain accepts anything.
func (s *session) probeCatchAll(ctx context.Context) bool {
	random := s.engine.opts.RandomLocal()
	rep, err := s.cmd(ctx, "RCPT TO:<"+random+"@"+s.domain+">")
	if err != nil {
		return false
	}
	return rep.code == 250 || rep.code == 251
}

func (s *session) vrfy(ctx context.Context) Result {
	target := s.engine.opts.Sequence.VrfyTarget
	if target == "" {
		target = s.local
	}
	rep, err := s.cmd(ctx, "VRFY "+target)
	if err != nil {
		return s.transport(ctx, err)
	}

	res := s.result()
	res.Code = rep.code
	res.Message = rep.full()
	switch rep.code {
	case 250, 252:
		res.Deliverable = types.DeliverableYes
	case 550:
		res.Deliverable = types.DeliverableNo
		res.Kind = types.KindInvalid
		res.Severity = types.SeverityPermanent
	default:
		res.Kind = types.KindUnknown
		res.Severity = types.SeverityUnknown
	}
	return res
}

// transport finishes the attempt with a classified I/O failure.
func (s *session) transport(ctx context.Context, err error) Result {
	kind, severity := classifyTransport(ctx, err)
	return s.fail(kind, severity, err.Error())
}

func (s *session) fail(kind types.ErrorKind, severity types.Severity, message string) Result {
	res := s.result()
	res.Kind = kind
	res.Severity = severity
	res.Message = message
	return res
}

// inconclusive finishes the attempt on a pre-RCPT rejection. The port
// loop moves on; nothing was learned about the mailbox.
func (s *session) inconclusive(rep reply, tag string) Result {
	res := s.result()
	res.Code = rep.code
	res.Kind = types.KindUnknown
	res.Severity = types.SeverityUnknown
	res.Message = tag + ": " + rep.full()
	return res
}
