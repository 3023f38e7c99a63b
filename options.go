package reachkit

import (
	"net/http"
	"time"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/types"
)

// Int returns a pointer to n. It exists for the pointer-typed option
// fields where an explicit zero must be distinguishable from "unset",
// such as SMTPOptions.MaxRetries.
func Int(n int) *int { return &n }

// Default values applied when options leave fields unset.
const (
	defaultTimeout          = 10 * time.Second
	defaultStepTimeout      = 3 * time.Second
	defaultMaxRetries       = 1
	defaultHelloName        = "localhost"
	defaultSuggestThreshold = 2
	defaultBatchSize        = 10
	maxBatchSize            = 100
)

func defaultPorts() []int { return []int{25, 587, 465} }

// TLSOptions controls TLS behavior for the SMTP probe: both the implicit
// handshake on port 465 and STARTTLS upgrades elsewhere.
type TLSOptions struct {
	// Disabled turns TLS off entirely. The probe then never upgrades,
	// and port 465 attempts will fail their handshake-less dialog.
	Disabled bool
	// RejectUnauthorized requires a verifiable certificate chain.
	// Default false: MX hosts routinely present certificates for names
	// other than the probed domain.
	RejectUnauthorized bool
	// MinVersion is a crypto/tls version constant (tls.VersionTLS12,
	// tls.VersionTLS13). Zero means TLS 1.2.
	MinVersion uint16
}

// Sequence overrides the SMTP step order. Steps are the types.Step
// constants; the StartTLS and VRFY steps may also be entered through the
// engine's jump rules when the server advertises support.
type Sequence struct {
	Steps []types.Step
	// From is the envelope sender for MAIL FROM. Empty means the null
	// sender <>, which keeps probes out of bounce loops.
	From string
	// VrfyTarget overrides the VRFY argument. Empty means the probed
	// local part.
	VrfyTarget string
}

// SMTPOptions configures the SMTP probe level. The zero value enables
// the standard probe: ports 25/587/465, 3s step timeout, one retry,
// opportunistic TLS, null sender, catch-all detection on.
type SMTPOptions struct {
	// Ports is the attempt order. nil means [25, 587, 465]. An explicitly
	// empty (non-nil) slice disables dialing: every verification answers
	// ConnectionError immediately.
	Ports []int
	// Timeout bounds every connect, read and write inside the dialog.
	// Default: 3s.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts per port after a
	// transient failure. nil means 1; use reachkit.Int(0) for exactly
	// one attempt per port.
	MaxRetries *int
	// TLS tunes the TLS policy. nil means enabled with
	// RejectUnauthorized=false and a TLS 1.2 floor.
	TLS *TLSOptions
	// HelloName goes into EHLO. Default: "localhost".
	HelloName string
	// DisableVRFY suppresses the VRFY fallback on unclassified 5xx
	// replies. VRFY is on by default.
	DisableVRFY bool
	// DisableCatchAll suppresses the random-local RCPT probe that
	// detects accept-everything domains.
	DisableCatchAll bool
	// DisableCache bypasses the smtp and smtpPort cache namespaces for
	// this verifier. The other namespaces are governed by WithCache.
	DisableCache bool
	// Debug records the full dialog transcript on each result.
	Debug bool
	// Sequence overrides the default step order
	// [greeting, ehlo, mail_from, rcpt_to].
	Sequence *Sequence
	// Proxy is a SOCKS5 URI ("socks5://host:1080") to dial MX hosts
	// through. Overrides WithProxy for the SMTP level.
	Proxy string
	// MaxConcurrent caps in-flight SMTP dialogs across the whole
	// verifier. <= 0 means unbounded.
	MaxConcurrent int
	// PerDomainInterval is the minimum spacing between dialogs to the
	// same domain. <= 0 means unpaced.
	PerDomainInterval time.Duration
}

// YahooAPIOptions configures the Yahoo signup-form probe enabled by
// WithYahooAPI. Zero values mean the production endpoints.
type YahooAPIOptions struct {
	SignupURL   string
	ValidateURL string
	UserAgent   string
	Timeout     time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// SuggestOptions configures typo suggestions.
type SuggestOptions struct {
	// Threshold is the maximum edit distance for a suggestion.
	// Default: 2.
	Threshold int
	// ExtraDomains extends the built-in popular-domain list.
	ExtraDomains []string
}

// CacheOptions configures the caching substrate shared by every level.
type CacheOptions struct {
	// Backend overrides the default in-process store. A Redis-backed
	// deployment passes cache.NewRedis here. The verifier closes
	// backends it created itself; caller-supplied backends stay open
	// after Close.
	Backend cache.Backend
	// Policies overrides per-namespace size and TTL; gaps are filled
	// with the defaults.
	Policies map[cache.Namespace]cache.Policy
	// Disable turns caching off entirely.
	Disable bool
}

// BatchOptions configures VerifyBatch fan-out.
type BatchOptions struct {
	// Concurrency is the number of addresses verified at once.
	// Default 10, hard ceiling 100.
	Concurrency int
}

func (o BatchOptions) concurrency() int {
	c := o.Concurrency
	if c <= 0 {
		c = defaultBatchSize
	}
	if c > maxBatchSize {
		c = maxBatchSize
	}
	return c
}
