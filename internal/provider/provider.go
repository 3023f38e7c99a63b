// Package provider maps domains (and MX exchanges) to the mail system
// behind them. The tag selects response-interpretation rules, optional
// probe routes and, when provider optimizations are on, tailored SMTP
// parameters.
package provider

import (
	"strings"
	"time"

	"github.com/optimode/reachkit/types"
)

// Exact domain sets. Subdomains deliberately do not inherit: mail.gmail.com
// is not Gmail, it is whatever its MX says it is.
var gmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
}

var yahooDomains = map[string]struct{}{
	"yahoo.com":    {},
	"yahoo.co.uk":  {},
	"yahoo.co.jp":  {},
	"yahoo.co.in":  {},
	"yahoo.co.id":  {},
	"yahoo.com.br": {},
	"yahoo.com.au": {},
	"yahoo.com.ar": {},
	"yahoo.com.mx": {},
	"yahoo.com.sg": {},
	"yahoo.ca":     {},
	"yahoo.de":     {},
	"yahoo.es":     {},
	"yahoo.fr":     {},
	"yahoo.gr":     {},
	"yahoo.ie":     {},
	"yahoo.it":     {},
	"ymail.com":    {},
	"rocketmail.com": {},
}

var hotmailB2CDomains = map[string]struct{}{
	"hotmail.com":    {},
	"hotmail.co.uk":  {},
	"hotmail.co.jp":  {},
	"hotmail.de":     {},
	"hotmail.es":     {},
	"hotmail.fr":     {},
	"hotmail.it":     {},
	"outlook.com":    {},
	"outlook.com.au": {},
	"outlook.com.br": {},
	"outlook.de":     {},
	"outlook.es":     {},
	"outlook.fr":     {},
	"outlook.jp":     {},
	"live.com":       {},
	"live.co.uk":     {},
	"live.de":        {},
	"live.fr":        {},
	"live.nl":        {},
	"msn.com":        {},
}

// Classify tags a domain from its name alone. Domains that match no
// curated set are EverythingElse until an MX hostname says otherwise.
func Classify(domain string) types.Provider {
	domain = normalize(domain)
	if _, ok := gmailDomains[domain]; ok {
		return types.ProviderGmail
	}
	if _, ok := yahooDomains[domain]; ok {
		return types.ProviderYahoo
	}
	if _, ok := hotmailB2CDomains[domain]; ok {
		return types.ProviderHotmailB2C
	}
	return types.ProviderEverythingElse
}

// ClassifyMX refines Classify with the MX exchange for domains that match
// no curated set. Hosted Exchange tenants, Proofpoint and Mimecast
// customers all hide behind gateway MX hostnames.
func ClassifyMX(domain, mxHost string) types.Provider {
	if tag := Classify(domain); tag != types.ProviderEverythingElse {
		return tag
	}

	mxHost = normalize(mxHost)
	switch {
	case strings.HasSuffix(mxHost, "-com.olc.protection.outlook.com"),
		strings.HasSuffix(mxHost, ".mail.protection.outlook.com"):
		return types.ProviderHotmailB2B
	case strings.Contains(mxHost, "pphosted.com"),
		strings.Contains(mxHost, "ppe-hosted.com"):
		return types.ProviderProofpoint
	case strings.HasSuffix(mxHost, ".mimecast.com"):
		return types.ProviderMimecast
	}
	return types.ProviderEverythingElse
}

// IsYahoo reports whether the domain belongs to Yahoo's consumer mail, for
// the signup-probe domain guard.
func IsYahoo(domain string) bool {
	_, ok := yahooDomains[normalize(domain)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
}

// Profile is the tailored SMTP parameter set applied under provider
// optimizations. Zero fields keep the caller's configuration.
type Profile struct {
	// Ports overrides the port order. The majors only answer probes on 25;
	// skipping 587/465 saves two timeouts per dead mailbox.
	Ports []int
	// DisableVRFY skips the VRFY fallback on servers that answer it
	// uselessly (252 for everything) or reject it outright.
	DisableVRFY bool
	// DisableCatchAll skips the random-local probe on gateways that accept
	// everything at RCPT time and filter later, where the probe only adds
	// a second command and no signal.
	DisableCatchAll bool
	// StepTimeout overrides the per-step timeout.
	StepTimeout time.Duration
}

// ProfileFor returns the tuning for a provider tag.
func ProfileFor(p types.Provider) Profile {
	switch p {
	case types.ProviderGmail:
		return Profile{Ports: []int{25}}
	case types.ProviderYahoo:
		return Profile{Ports: []int{25}, DisableVRFY: true}
	case types.ProviderHotmailB2C, types.ProviderHotmailB2B:
		return Profile{Ports: []int{25}, DisableVRFY: true, DisableCatchAll: true}
	case types.ProviderProofpoint, types.ProviderMimecast:
		return Profile{Ports: []int{25}, DisableVRFY: true, DisableCatchAll: true}
	default:
		return Profile{}
	}
}
