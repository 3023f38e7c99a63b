package reachkit

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/check"
	"github.com/optimode/reachkit/internal/dialog"
	"github.com/optimode/reachkit/internal/domainlist"
	"github.com/optimode/reachkit/internal/metrics"
	"github.com/optimode/reachkit/internal/parse"
	"github.com/optimode/reachkit/internal/probe"
	"github.com/optimode/reachkit/internal/provider"
	"github.com/optimode/reachkit/internal/resolve"
	"github.com/optimode/reachkit/internal/suggest"
	"github.com/optimode/reachkit/internal/throttle"
	"github.com/optimode/reachkit/types"
)

// Verifier is the main fluent builder struct. Instantiate with New,
// configure with the With* methods, then call VerifyOne or VerifyBatch.
// Configuration errors are recorded and returned by the first Verify
// call. A Verifier is safe for concurrent use once built; the With*
// methods are not, so finish configuring before sharing it.
type Verifier struct {
	err error // first configuration error, surfaced on Verify*

	verifyMX        bool
	verifySMTP      bool
	smtpOpts        SMTPOptions
	useYahooAPI     bool
	yahooOpts       YahooAPIOptions
	checkDisposable bool
	checkFree       bool
	suggestDomains  bool
	suggestOpts     SuggestOptions
	detectName      bool
	spamCheck       bool
	providerOpt     bool
	timeout         time.Duration
	debug           bool
	logger          zerolog.Logger
	proxyURI        string
	cacheOpts       CacheOptions
	metricsReg      prometheus.Registerer

	// Test seams. nil means the production implementation.
	dnsResolver resolve.Resolver
	smtpDialer  dialog.Dialer
	smtpSleep   dialog.SleepFunc
	randomLocal func() string

	buildOnce   sync.Once
	buildErr    error
	backend     cache.Backend
	ownsBackend bool

	mx             *check.MXChecker
	smtp           *check.SMTPChecker
	misc           *check.MiscChecker
	probes         probe.Registry
	suggester      *suggest.Suggester
	syntaxView     *cache.View[types.Syntax]
	disposableView *cache.View[bool]
	freeView       *cache.View[bool]
	suggestionView *cache.View[string]
}

// New creates a Verifier with the default levels: syntax always runs,
// MX resolution and the disposable/free lookups are on, the SMTP probe
// is off until WithSMTP enables it.
func New() *Verifier {
	return &Verifier{
		verifyMX:        true,
		checkDisposable: true,
		checkFree:       true,
		timeout:         defaultTimeout,
		logger:          zerolog.Nop(),
	}
}

// WithoutMX disables the MX resolution level. When the SMTP probe is
// enabled it still resolves MX records, because the dialog needs a host
// to talk to.
func (v *Verifier) WithoutMX() *Verifier {
	v.verifyMX = false
	return v
}

// WithSMTP enables the SMTP RCPT TO probe. The zero-value options give
// the standard probe; see SMTPOptions for the knobs.
func (v *Verifier) WithSMTP(opts SMTPOptions) *Verifier {
	for _, p := range opts.Ports {
		if p < 1 || p > 65535 {
			v.fail(fmt.Errorf("%w: port %d out of range", ErrInvalidSMTPOptions, p))
			return v
		}
	}
	if opts.Sequence != nil {
		for _, s := range opts.Sequence.Steps {
			if !knownStep(s) {
				v.fail(fmt.Errorf("%w: unknown step %q", ErrInvalidSMTPOptions, s))
				return v
			}
		}
	}
	v.verifySMTP = true
	v.smtpOpts = opts
	return v
}

// WithYahooAPI routes Yahoo-family domains through the signup-form probe
// instead of SMTP. Yahoo's MX servers accept any RCPT, so the SMTP route
// can only ever answer risky for them.
func (v *Verifier) WithYahooAPI(opts ...YahooAPIOptions) *Verifier {
	v.useYahooAPI = true
	if len(opts) > 0 {
		v.yahooOpts = opts[0]
	}
	return v
}

// WithoutDisposable skips the disposable-domain lookup.
func (v *Verifier) WithoutDisposable() *Verifier {
	v.checkDisposable = false
	return v
}

// WithoutFree skips the free-provider lookup.
func (v *Verifier) WithoutFree() *Verifier {
	v.checkFree = false
	return v
}

// WithSuggestions attaches a typo suggestion (misc.suggestion) for
// domains within edit distance of a popular provider. Suggestions never
// change the verdict.
func (v *Verifier) WithSuggestions(opts ...SuggestOptions) *Verifier {
	v.suggestDomains = true
	if len(opts) > 0 {
		v.suggestOpts = opts[0]
	}
	return v
}

// WithNameDetection derives a display name from the local part
// (misc.name).
func (v *Verifier) WithNameDetection() *Verifier {
	v.detectName = true
	return v
}

// WithSpamCheck flags local parts that look machine-generated
// (misc.looksRandom).
func (v *Verifier) WithSpamCheck() *Verifier {
	v.spamCheck = true
	return v
}

// WithProviderOptimizations applies per-provider tuning to the SMTP
// dialog: port order, VRFY and catch-all suppression, step timeouts.
func (v *Verifier) WithProviderOptimizations() *Verifier {
	v.providerOpt = true
	return v
}

// WithTimeout bounds each whole verification. Default: 10s.
func (v *Verifier) WithTimeout(d time.Duration) *Verifier {
	if d > 0 {
		v.timeout = d
	}
	return v
}

// WithDebug enables dialog transcripts on results and debug-level
// logging.
func (v *Verifier) WithDebug() *Verifier {
	v.debug = true
	return v
}

// WithLogger routes internal logging to the given zerolog logger.
// Without it the verifier is silent.
func (v *Verifier) WithLogger(log zerolog.Logger) *Verifier {
	v.logger = log
	return v
}

// WithProxy dials MX hosts through a SOCKS5 proxy.
func (v *Verifier) WithProxy(uri string) *Verifier {
	v.proxyURI = uri
	return v
}

// WithCache overrides the caching substrate: a shared backend (for
// example cache.NewRedis), per-namespace policies, or Disable.
func (v *Verifier) WithCache(opts CacheOptions) *Verifier {
	v.cacheOpts = opts
	return v
}

// WithMetrics registers the verifier's Prometheus collectors with reg.
// Counters are always maintained; this only makes them scrapeable.
func (v *Verifier) WithMetrics(reg prometheus.Registerer) *Verifier {
	v.metricsReg = reg
	return v
}

func (v *Verifier) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func knownStep(s types.Step) bool {
	switch s {
	case types.StepGreeting, types.StepEhlo, types.StepStartTLS,
		types.StepMailFrom, types.StepRcptTo, types.StepVrfy, types.StepQuit:
		return true
	}
	return false
}

// Close releases resources held by the Verifier. Safe to call multiple
// times; a no-op when the caller supplied its own cache backend.
func (v *Verifier) Close() error {
	if v.ownsBackend && v.backend != nil {
		backend := v.backend
		v.backend = nil
		return backend.Close()
	}
	return nil
}

// build assembles the checkers exactly once. Configuration recorded by
// the With* methods is frozen from the first Verify call on.
func (v *Verifier) build() error {
	v.buildOnce.Do(func() { v.buildErr = v.assemble() })
	return v.buildErr
}

func (v *Verifier) assemble() error {
	if v.metricsReg != nil {
		if err := metrics.Register(v.metricsReg); err != nil {
			return fmt.Errorf("reachkit: registering metrics: %w", err)
		}
	}

	if !v.cacheOpts.Disable {
		v.backend = v.cacheOpts.Backend
		if v.backend == nil {
			v.backend = cache.NewMemory(v.cacheOpts.Policies)
			v.ownsBackend = true
		}
	}

	v.syntaxView = cache.NewView[types.Syntax](v.backend, cache.NamespaceSyntax, v.logger)
	v.disposableView = cache.NewView[bool](v.backend, cache.NamespaceDisposable, v.logger)
	v.freeView = cache.NewView[bool](v.backend, cache.NamespaceFree, v.logger)

	mxView := cache.NewView[types.MX](v.backend, cache.NamespaceMX, v.logger)
	validView := cache.NewView[bool](v.backend, cache.NamespaceDomainValid, v.logger)
	v.mx = check.NewMXChecker(resolve.New(v.dnsResolver, mxView, 0), validView)

	threshold := v.suggestOpts.Threshold
	if threshold <= 0 {
		threshold = defaultSuggestThreshold
	}
	v.suggester = suggest.New(threshold, v.suggestOpts.ExtraDomains...)
	v.suggestionView = cache.NewView[string](v.backend, cache.NamespaceSuggestion, v.logger)
	v.misc = check.NewMiscChecker(check.MiscConfig{
		CheckDisposable: v.checkDisposable,
		CheckFree:       v.checkFree,
		CheckRole:       true,
		SuggestDomain:   v.suggestDomains,
		DetectName:      v.detectName,
		SpamCheck:       v.spamCheck,
	}, v.suggester, v.suggestionView)

	if v.verifySMTP {
		smtp, err := v.assembleSMTP()
		if err != nil {
			return err
		}
		v.smtp = smtp
	}

	v.probes = probe.Registry{}
	if v.useYahooAPI {
		v.probes.Add(probe.NewYahoo(probe.YahooOptions{
			SignupURL:   v.yahooOpts.SignupURL,
			ValidateURL: v.yahooOpts.ValidateURL,
			UserAgent:   v.yahooOpts.UserAgent,
			Timeout:     v.yahooOpts.Timeout,
			Client:      v.yahooOpts.Client,
			Logger:      v.logger,
		}))
	}

	return nil
}

func (v *Verifier) assembleSMTP() (*check.SMTPChecker, error) {
	o := v.smtpOpts

	ports := o.Ports
	if ports == nil {
		ports = defaultPorts()
	}
	stepTimeout := o.Timeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	retries := defaultMaxRetries
	if o.MaxRetries != nil {
		retries = *o.MaxRetries
	}
	hello := o.HelloName
	if hello == "" {
		hello = defaultHelloName
	}

	var tlsPolicy dialog.TLSPolicy
	if o.TLS != nil {
		tlsPolicy = dialog.TLSPolicy{
			Disabled:           o.TLS.Disabled,
			RejectUnauthorized: o.TLS.RejectUnauthorized,
			MinVersion:         o.TLS.MinVersion,
		}
	}

	var seq dialog.Sequence
	if o.Sequence != nil {
		seq = dialog.Sequence{
			Steps:      o.Sequence.Steps,
			From:       o.Sequence.From,
			VrfyTarget: o.Sequence.VrfyTarget,
		}
	}

	dialer := v.smtpDialer
	if dialer == nil {
		proxyURI := o.Proxy
		if proxyURI == "" {
			proxyURI = v.proxyURI
		}
		if proxyURI != "" {
			d, err := socksDialer(proxyURI, stepTimeout)
			if err != nil {
				return nil, err
			}
			dialer = d
		}
	}

	cfg := check.SMTPConfig{
		Ports:                 ports,
		StepTimeout:           stepTimeout,
		MaxRetries:            retries,
		TLS:                   tlsPolicy,
		HelloName:             hello,
		UseVRFY:               !o.DisableVRFY,
		Sequence:              seq,
		CatchAllProbe:         !o.DisableCatchAll,
		ProviderOptimizations: v.providerOpt,
		Debug:                 o.Debug || v.debug,
		Logger:                v.logger,
		Dialer:                dialer,
		Sleep:                 v.smtpSleep,
		RandomLocal:           v.randomLocal,
	}

	var portView *cache.View[int]
	var smtpView *cache.View[types.SMTP]
	if !o.DisableCache {
		portView = cache.NewView[int](v.backend, cache.NamespaceSMTPPort, v.logger)
		smtpView = cache.NewView[types.SMTP](v.backend, cache.NamespaceSMTP, v.logger)
	}

	var th *throttle.Throttle
	if o.MaxConcurrent > 0 || o.PerDomainInterval > 0 {
		th = throttle.New(o.MaxConcurrent, o.PerDomainInterval)
	}

	return check.NewSMTPChecker(cfg, portView, smtpView, th), nil
}

// socksDialer builds a dialog.Dialer that tunnels through a SOCKS5
// proxy.
func socksDialer(uri string, timeout time.Duration) (dialog.Dialer, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "socks5" || u.Host == "" {
		return nil, ErrInvalidProxy
	}
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, ErrInvalidProxy
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return cd.DialContext(ctx, network, address)
	}, nil
}

// VerifyOne verifies a single address and always returns a complete
// Result; the error return is reserved for configuration mistakes.
// Network trouble, classification outcomes and even internal panics all
// travel inside the Result.
func (v *Verifier) VerifyOne(ctx context.Context, email string) (result *types.Result, err error) {
	if v.err != nil {
		return nil, v.err
	}
	if err := v.build(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error().
				Interface("panic", r).
				Str("email", email).
				Bytes("stack", debug.Stack()).
				Msg("verification panicked")
			result = &types.Result{
				Email:      email,
				Reachable:  types.ReachableUnknown,
				Error:      "internal error",
				DurationMS: time.Since(start).Milliseconds(),
			}
			err = nil
		}
		if result != nil {
			metrics.Verification(result.Reachable)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result = v.verify(ctx, email)
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (v *Verifier) verify(ctx context.Context, email string) *types.Result {
	result := &types.Result{Email: email, Reachable: types.ReachableUnknown}

	result.Syntax = v.syntax(ctx, email)
	if !result.Syntax.IsValid {
		result.Reachable = types.ReachableInvalid
		if result.Syntax.Error != "" {
			result.Error = result.Syntax.Error
		}
		return result
	}
	local, domain := result.Syntax.Local, result.Syntax.Domain
	parsed := parse.NewEmail(result.Syntax.Normalized)

	result.Misc = v.misc.Check(ctx, local, domain, parsed.DomainUnicode)
	result.Provider = provider.Classify(domain)

	if v.verifyMX || v.verifySMTP {
		result.MX = v.mx.Check(ctx, domain)
		if !result.MX.Success {
			result.Reachable = types.ReachableInvalid
			if result.MX.Error != "" {
				result.Error = result.MX.Error
			}
			return result
		}
		if lowest, ok := result.MX.Lowest(); ok {
			result.Provider = provider.ClassifyMX(domain, lowest.Exchange)
		}
	}

	if v.verifySMTP {
		if p, ok := v.probes.For(result.Provider, domain); ok {
			probed := p.Probe(ctx, local, domain)
			result.Probe = &probed
		} else if lowest, ok := result.MX.Lowest(); ok {
			result.SMTP = v.smtp.Check(ctx, local, domain, lowest.Exchange, result.Provider)
		}
	}

	result.Reachable = verdict(result)
	if result.Error == "" {
		result.Error = surfacedError(result)
	}
	return result
}

// syntax memoizes the pure syntax check. The check is cheap; the memo
// mainly keeps batch runs with repeated addresses out of the parser.
func (v *Verifier) syntax(ctx context.Context, email string) types.Syntax {
	key := strings.ToLower(strings.TrimSpace(email))
	if cached, ok := v.syntaxView.Get(ctx, key); ok {
		return cached
	}
	s := check.Syntax(email)
	v.syntaxView.Set(ctx, key, s)
	return s
}

// verdict folds the collected evidence into the reachability answer.
// Catch-all, disposable and full-inbox downgrade a deliverable address
// to risky; full-inbox also upgrades an undeliverable one, because the
// mailbox exists even though it bounces today.
func verdict(r *types.Result) types.Reachable {
	if !r.Syntax.IsValid {
		return types.ReachableInvalid
	}
	if r.MX != nil && !r.MX.Success {
		return types.ReachableInvalid
	}
	disposable := r.Misc != nil && r.Misc.Disposable

	if r.Probe != nil {
		switch {
		case r.Probe.Error != "":
			return types.ReachableUnknown
		case r.Probe.IsDeliverable:
			if disposable {
				return types.ReachableRisky
			}
			return types.ReachableSafe
		default:
			return types.ReachableInvalid
		}
	}

	if r.SMTP != nil {
		switch r.SMTP.Deliverable {
		case types.DeliverableYes:
			if r.SMTP.CatchAll || r.SMTP.FullInbox || disposable {
				return types.ReachableRisky
			}
			return types.ReachableSafe
		case types.DeliverableNo:
			if r.SMTP.FullInbox {
				return types.ReachableRisky
			}
			return types.ReachableInvalid
		}
		return types.ReachableUnknown
	}

	return types.ReachableUnknown
}

// surfacedError picks the short user-safe error string for transport
// failures that left the verdict unknown.
func surfacedError(r *types.Result) string {
	if r.SMTP != nil && r.SMTP.Deliverable == types.DeliverableUnknown {
		switch r.SMTP.Kind {
		case types.KindConnectionError, types.KindTimeout:
			return r.SMTP.Kind
		}
	}
	if r.Probe != nil && r.Probe.Error != "" {
		return r.Probe.Error
	}
	return ""
}

// VerifyBatch verifies addresses concurrently. Results keep the input
// order; each element is independent, so the batch itself never fails
// once the verifier is built. Inputs are processed grouped by domain,
// which keeps the MX and port caches hot.
func (v *Verifier) VerifyBatch(ctx context.Context, emails []string, opts ...BatchOptions) ([]*types.Result, error) {
	if v.err != nil {
		return nil, v.err
	}
	if err := v.build(); err != nil {
		return nil, err
	}

	var batchOpts BatchOptions
	if len(opts) > 0 {
		batchOpts = opts[0]
	}

	type job struct {
		idx    int
		email  string
		domain string
	}
	jobs := make([]job, len(emails))
	for i, e := range emails {
		d := ""
		if at := strings.LastIndex(e, "@"); at >= 0 {
			d = strings.ToLower(e[at+1:])
		}
		jobs[i] = job{idx: i, email: e, domain: d}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].domain < jobs[j].domain })

	results := make([]*types.Result, len(emails))
	var g errgroup.Group
	g.SetLimit(batchOpts.concurrency())
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := v.VerifyOne(ctx, j.email)
			if err != nil {
				res = &types.Result{
					Email:     j.email,
					Reachable: types.ReachableUnknown,
					Error:     err.Error(),
				}
			}
			results[j.idx] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// IsDisposable reports whether domain belongs to a known disposable
// provider. Accepts bare domains or full addresses' domain part;
// internationalized domains may be given in Unicode form.
func (v *Verifier) IsDisposable(ctx context.Context, domain string) bool {
	if v.err != nil || v.build() != nil {
		return false
	}
	d := parse.NormalizeDomain(domain)
	if cached, ok := v.disposableView.Get(ctx, d); ok {
		return cached
	}
	hit := domainlist.IsDisposable(d)
	v.disposableView.Set(ctx, d, hit)
	return hit
}

// IsFree reports whether domain belongs to a free consumer provider.
func (v *Verifier) IsFree(ctx context.Context, domain string) bool {
	if v.err != nil || v.build() != nil {
		return false
	}
	d := parse.NormalizeDomain(domain)
	if cached, ok := v.freeView.Get(ctx, d); ok {
		return cached
	}
	hit := domainlist.IsFree(d)
	v.freeView.Set(ctx, d, hit)
	return hit
}

// SuggestDomain returns a likely intended domain for a typo
// ("gmial.com" → "gmail.com"), or "" when the domain is either correct
// or not close to anything popular.
func (v *Verifier) SuggestDomain(ctx context.Context, domain string) string {
	if v.err != nil || v.build() != nil {
		return ""
	}
	d := strings.ToLower(strings.TrimSpace(domain))
	if cached, ok := v.suggestionView.Get(ctx, d); ok {
		return cached
	}
	s := v.suggester.Suggest(d)
	v.suggestionView.Set(ctx, d, s)
	return s
}
