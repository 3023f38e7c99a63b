// Package types contains the shared types for reachkit.
// This package does not import anything from other reachkit packages
// to avoid circular imports.
package types

// Reachable is the top-level verdict for an address.
type Reachable = string

const (
	ReachableSafe    Reachable = "safe"
	ReachableRisky   Reachable = "risky"
	ReachableInvalid Reachable = "invalid"
	ReachableUnknown Reachable = "unknown"
)

// Deliverable is the tri-state answer of an SMTP dialog or provider probe.
type Deliverable = string

const (
	DeliverableYes     Deliverable = "yes"
	DeliverableNo      Deliverable = "no"
	DeliverableUnknown Deliverable = "unknown"
)

// ErrorKind is the normalized classification of a failed or inconclusive
// verification step. Message strings vary wildly between servers; kinds
// do not.
type ErrorKind = string

const (
	KindInvalid         ErrorKind = "Invalid"
	KindDisabled        ErrorKind = "Disabled"
	KindFullInbox       ErrorKind = "FullInbox"
	KindRateLimited     ErrorKind = "RateLimited"
	KindBlocked         ErrorKind = "Blocked"
	KindGreyListed      ErrorKind = "GreyListed"
	KindCatchAll        ErrorKind = "CatchAll"
	KindConnectionError ErrorKind = "ConnectionError"
	KindTimeout         ErrorKind = "Timeout"
	KindPolicyRejection ErrorKind = "PolicyRejection"
	KindUnknown         ErrorKind = "Unknown"
)

// Severity says whether an ErrorKind is worth retrying.
type Severity = string

const (
	SeverityPermanent Severity = "Permanent"
	SeverityTemporary Severity = "Temporary"
	SeverityUnknown   Severity = "Unknown"
)

// Provider tags a domain with the mail system behind it. The tag picks
// response-interpretation rules and, optionally, a tailored probe strategy.
type Provider = string

const (
	ProviderGmail          Provider = "Gmail"
	ProviderYahoo          Provider = "Yahoo"
	ProviderHotmailB2C     Provider = "HotmailB2C"
	ProviderHotmailB2B     Provider = "HotmailB2B"
	ProviderProofpoint     Provider = "Proofpoint"
	ProviderMimecast       Provider = "Mimecast"
	ProviderEverythingElse Provider = "EverythingElse"
)

// Step is one state of the SMTP dialog machine.
type Step = string

const (
	StepGreeting Step = "greeting"
	StepEhlo     Step = "ehlo"
	StepStartTLS Step = "starttls"
	StepMailFrom Step = "mail_from"
	StepRcptTo   Step = "rcpt_to"
	StepVrfy     Step = "vrfy"
	StepQuit     Step = "quit"
)

// Syntax is the outcome of the pure syntax check.
type Syntax struct {
	IsValid    bool   `json:"isValid"`
	Local      string `json:"local,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Normalized string `json:"normalized,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MXRecord is a single mail exchange entry.
type MXRecord struct {
	Exchange string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// MX is the outcome of MX resolution. Records are sorted ascending by
// priority; ties keep resolver order.
type MX struct {
	Success bool       `json:"success"`
	Records []MXRecord `json:"records,omitempty"`
	Error   string     `json:"error,omitempty"`
	Code    string     `json:"code,omitempty"`
}

// Lowest returns the best-preference record.
func (m *MX) Lowest() (MXRecord, bool) {
	if m == nil || len(m.Records) == 0 {
		return MXRecord{}, false
	}
	return m.Records[0], true
}

// MX resolution error codes.
const (
	DNSCodeNXDomain = "NXDOMAIN"
	DNSCodeTimeout  = "TIMEOUT"
	DNSCodeServfail = "SERVFAIL"
)

// SMTP is the outcome of the dialog engine after interpretation.
type SMTP struct {
	HostExists   bool        `json:"hostExists"`
	Deliverable  Deliverable `json:"deliverable"`
	CatchAll     bool        `json:"catchAll"`
	Disabled     bool        `json:"disabled"`
	FullInbox    bool        `json:"fullInbox"`
	Kind         ErrorKind   `json:"kind,omitempty"`
	Severity     Severity    `json:"severity,omitempty"`
	ProviderCode string      `json:"providerCode,omitempty"`
	Code         int         `json:"code,omitempty"`
	Message      string      `json:"message,omitempty"`
	Port         int         `json:"port,omitempty"`
	TLS          bool        `json:"tls"`
	Retries      int         `json:"retries,omitempty"`
	Transcript   []string    `json:"transcript,omitempty"`
}

// Probe is the outcome of a non-SMTP provider probe. It mirrors the
// deliverability contract of SMTP by another route.
type Probe struct {
	Provider      Provider `json:"provider"`
	IsValid       bool     `json:"isValid"`
	IsDeliverable bool     `json:"isDeliverable"`
	Error         string   `json:"error,omitempty"`
}

// Misc carries the informational traits that never change the verdict on
// their own (disposable and catch-all downgrade it; the rest are advisory).
type Misc struct {
	Disposable  bool   `json:"disposable"`
	Free        bool   `json:"free"`
	RoleAccount bool   `json:"roleAccount"`
	Suggestion  string `json:"suggestion,omitempty"`
	Name        string `json:"name,omitempty"`
	LooksRandom bool   `json:"looksRandom,omitempty"`
}

// Result is the complete verification record for one address.
type Result struct {
	Email      string    `json:"email"`
	Reachable  Reachable `json:"reachable"`
	Syntax     Syntax    `json:"syntax"`
	MX         *MX       `json:"mx,omitempty"`
	SMTP       *SMTP     `json:"smtp,omitempty"`
	Probe      *Probe    `json:"probe,omitempty"`
	Misc       *Misc     `json:"misc,omitempty"`
	Provider   Provider  `json:"provider,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
}
