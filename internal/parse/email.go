package parse

import (
	"strings"

	"golang.org/x/net/idna"
)

// Email is the internal representation of a parsed, normalized address.
// The check/ packages receive this as parameter.
//
// Normalization is trim + lowercase on both sides of the @ and is
// idempotent: parsing the Normalized form again yields the same Email.
type Email struct {
	Raw           string // the original input, trimmed
	Local         string // the part before @, lowercased
	Domain        string // the part after @, lowercased ASCII/Punycode form (for DNS/SMTP)
	DomainUnicode string // the part after @, Unicode form (for display/typo detection)
	Normalized    string // Local + "@" + Domain
	Valid         bool   // false if Raw cannot be split into local@domain
}

// NewEmail splits and normalizes the given address. If the input has no
// usable local@domain shape, Valid=false but Raw is always populated.
// Internationalized domains (IDNA2008) and Unicode local parts
// (RFC 6531 / SMTPUTF8) are supported; the Domain field is always the
// ASCII form so it can go straight into DNS lookups and SMTP commands.
//
// Shape rules beyond the split (length limits, dot and hyphen placement,
// quoting) live in check.Syntax; this type is purely mechanical.
func NewEmail(raw string) Email {
	raw = strings.TrimSpace(raw)

	// Exactly one @. Addresses with quoted local parts could legally carry
	// more, but quoted locals are rejected upstream anyway.
	if strings.Count(raw, "@") != 1 {
		return Email{Raw: raw, Valid: false}
	}

	at := strings.IndexByte(raw, '@')
	local := strings.ToLower(raw[:at])
	domain := strings.ToLower(raw[at+1:])
	if local == "" || domain == "" {
		return Email{Raw: raw, Valid: false}
	}

	ascii, unicode, ok := domainForms(domain)
	if !ok {
		return Email{Raw: raw, Valid: false}
	}

	return Email{
		Raw:           raw,
		Local:         local,
		Domain:        ascii,
		DomainUnicode: unicode,
		Normalized:    local + "@" + ascii,
		Valid:         true,
	}
}

// NormalizeDomain lowercases and IDNA-converts a bare domain, for the
// public helpers that take a domain instead of a full address.
// Returns the ASCII form, or the lowercased input if conversion fails.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	ascii, _, ok := domainForms(domain)
	if !ok {
		return domain
	}
	return ascii
}

// domainForms converts a lowercased domain to both ASCII/Punycode and
// Unicode forms. ok is false when a non-ASCII domain fails IDNA2008
// validation.
func domainForms(domain string) (ascii, unicode string, ok bool) {
	nonASCII := false
	for _, r := range domain {
		if r > 127 {
			nonASCII = true
			break
		}
	}

	if nonASCII {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return "", "", false
		}
		return a, domain, true
	}

	// Pure ASCII: recover the display form for existing Punycode labels
	// (xn--mnchen-3ya.de → münchen.de).
	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}
