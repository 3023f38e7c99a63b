package check

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/internal/dialog"
	"github.com/optimode/reachkit/internal/interpret"
	"github.com/optimode/reachkit/internal/metrics"
	"github.com/optimode/reachkit/internal/provider"
	"github.com/optimode/reachkit/internal/throttle"
	"github.com/optimode/reachkit/types"
)

// SMTPConfig carries the dialog parameters the caller controls.
type SMTPConfig struct {
	Ports       []int
	StepTimeout time.Duration
	MaxRetries  int
	TLS         dialog.TLSPolicy
	HelloName   string
	UseVRFY     bool
	Sequence    dialog.Sequence
	// CatchAllProbe runs the random-local RCPT after an accepted one.
	CatchAllProbe bool
	// ProviderOptimizations applies the per-provider tuning profiles.
	ProviderOptimizations bool
	Debug                 bool
	Logger                zerolog.Logger

	// Injectable seams.
	Dialer      dialog.Dialer
	Sleep       dialog.SleepFunc
	RandomLocal func() string
}

// SMTPChecker is the SMTP verification level: it throttles, picks ports
// (preferring the domain's last-good one), runs the dialog engine and
// refines the outcome through the response interpreter.
type SMTPChecker struct {
	cfg      SMTPConfig
	portView *cache.View[int]
	smtpView *cache.View[types.SMTP]
	throttle *throttle.Throttle
}

// NewSMTPChecker builds the checker. Either view may be nil to disable
// that memo; throttle may be nil for unpaced probing.
func NewSMTPChecker(cfg SMTPConfig, portView *cache.View[int], smtpView *cache.View[types.SMTP], th *throttle.Throttle) *SMTPChecker {
	return &SMTPChecker{cfg: cfg, portView: portView, smtpView: smtpView, throttle: th}
}

// Check verifies local@domain against mxHost. prov selects the
// interpretation rules and, when optimizations are on, the dialog tuning.
func (c *SMTPChecker) Check(ctx context.Context, local, domain, mxHost string, prov types.Provider) *types.SMTP {
	key := local + "@" + domain
	if cached, ok := c.smtpView.Get(ctx, key); ok {
		return &cached
	}

	if c.throttle != nil {
		release, err := c.throttle.Acquire(ctx, domain)
		if err != nil {
			out := &types.SMTP{
				Deliverable: types.DeliverableUnknown,
				Kind:        types.KindTimeout,
				Severity:    types.SeverityTemporary,
				Message:     "verification cancelled while waiting for a probe slot",
			}
			metrics.Dialog(out.Deliverable, out.Kind)
			return out
		}
		defer release()
	}

	opts := c.dialogOptions(prov)
	if port, ok := c.portView.Get(ctx, domain); ok {
		opts.PreferredPort = port
	}

	res := dialog.New(opts).Run(ctx, local, domain, mxHost)

	if res.EhloOK {
		c.portView.Set(ctx, domain, res.Port)
	}

	out := c.convert(res, prov)
	if out.Deliverable != types.DeliverableUnknown {
		c.smtpView.Set(ctx, key, *out)
	}
	metrics.Dialog(out.Deliverable, out.Kind)
	return out
}

// dialogOptions maps the config (plus any provider profile) onto the
// engine's options.
func (c *SMTPChecker) dialogOptions(prov types.Provider) dialog.Options {
	opts := dialog.Options{
		Ports:         c.cfg.Ports,
		StepTimeout:   c.cfg.StepTimeout,
		MaxRetries:    c.cfg.MaxRetries,
		TLS:           c.cfg.TLS,
		HelloName:     c.cfg.HelloName,
		UseVRFY:       c.cfg.UseVRFY,
		Sequence:      c.cfg.Sequence,
		CatchAllProbe: c.cfg.CatchAllProbe,
		Debug:         c.cfg.Debug,
		Logger:        c.cfg.Logger,
		Dialer:        c.cfg.Dialer,
		Sleep:         c.cfg.Sleep,
		RandomLocal:   c.cfg.RandomLocal,
	}

	if c.cfg.ProviderOptimizations {
		p := provider.ProfileFor(prov)
		if len(p.Ports) > 0 {
			opts.Ports = p.Ports
		}
		if p.DisableVRFY {
			opts.UseVRFY = false
		}
		if p.DisableCatchAll {
			opts.CatchAllProbe = false
		}
		if p.StepTimeout > 0 {
			opts.StepTimeout = p.StepTimeout
		}
	}
	return opts
}

// convert folds the engine's outcome and the interpreter's refinement
// into the result record. The deliverability tri-state always comes from
// the dialog's step table; the interpreter only sharpens kind, severity
// and provider code from the reply text.
func (c *SMTPChecker) convert(res dialog.Result, prov types.Provider) *types.SMTP {
	out := &types.SMTP{
		HostExists:  res.HostExists,
		Deliverable: res.Deliverable,
		CatchAll:    res.CatchAll,
		Kind:        res.Kind,
		Severity:    res.Severity,
		Code:        res.Code,
		Message:     res.Message,
		Port:        res.Port,
		TLS:         res.TLS,
		Retries:     res.Retries,
		Transcript:  res.Transcript,
		FullInbox:   res.FullInbox,
	}

	// Refine only the coarse kinds. A generic Invalid may sharpen into
	// Disabled (Gmail's "account disabled" answers on 550), but decisive
	// classifications like PolicyRejection or GreyListed stand as the
	// step table produced them.
	refinable := out.Kind == "" || out.Kind == types.KindUnknown || out.Kind == types.KindInvalid
	if refinable && res.Message != "" && res.Deliverable != types.DeliverableYes {
		cls := interpret.Classify(res.Message, prov, res.Code)
		if cls.Kind != types.KindUnknown {
			out.Kind = cls.Kind
			out.Severity = cls.Severity
			out.ProviderCode = cls.ProviderCode
		}
	}

	out.Disabled = out.Kind == types.KindDisabled
	if out.Kind == types.KindFullInbox {
		out.FullInbox = true
	}
	if out.CatchAll && out.Kind == "" {
		out.Kind = types.KindCatchAll
	}
	return out
}
