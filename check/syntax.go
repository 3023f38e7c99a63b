package check

import (
	"strings"
	"unicode"

	"github.com/optimode/reachkit/internal/parse"
	"github.com/optimode/reachkit/types"
)

// Error message fragments that are part of the public contract: callers
// pattern-match on them, so they never change.
const (
	msgLocalTooLong  = "Local part exceeds 64 characters"
	msgDomainTooLong = "Domain exceeds 253 characters"
	msgInvalidFormat = "Invalid email format"
)

// Syntax validates the shape of an address without any I/O. The input is
// trimmed and lowercased first; on success Local, Domain and Normalized
// carry the canonical form. Supports Unicode local parts (RFC 6531) and
// internationalized domains (IDNA2008); the Domain field is always ASCII.
//
// Quoted-string local parts ("john doe"@example.com) are deliberately
// rejected: no mailbox probe can be run against them safely.
func Syntax(raw string) types.Syntax {
	email := parse.NewEmail(raw)
	if !email.Valid {
		return types.Syntax{IsValid: false, Error: msgInvalidFormat}
	}

	out := types.Syntax{
		Local:      email.Local,
		Domain:     email.Domain,
		Normalized: email.Normalized,
	}

	if strings.Contains(email.Local, `"`) {
		out.Error = msgInvalidFormat + ": quoted local parts are not supported"
		return out
	}
	if len(email.Local) > 64 {
		out.Error = msgLocalTooLong
		return out
	}
	if len(email.Domain) > 253 {
		out.Error = msgDomainTooLong
		return out
	}
	if detail := checkLocal(email.Local); detail != "" {
		out.Error = msgInvalidFormat + ": " + detail
		return out
	}
	if detail := checkDomain(email.DomainUnicode); detail != "" {
		out.Error = msgInvalidFormat + ": " + detail
		return out
	}

	out.IsValid = true
	return out
}

// checkLocal validates the (already lowercased) local part. Returns a
// detail string, or "" if ok.
func checkLocal(local string) string {
	// RFC 5321 ASCII special characters allowed besides alphanumerics.
	const asciiSpecial = "!#$%&'*+/=?^_`{|}~-."

	for _, ch := range local {
		if ch > 127 {
			// RFC 6531 (SMTPUTF8): non-ASCII is fine except controls.
			if unicode.IsControl(ch) {
				return "local part contains control character"
			}
			continue
		}
		if unicode.IsSpace(ch) {
			return "local part contains whitespace"
		}
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			continue
		}
		if !strings.ContainsRune(asciiSpecial, ch) {
			return "local part contains invalid character: " + string(ch)
		}
	}

	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "local part cannot start or end with a dot"
	}
	if strings.Contains(local, "..") {
		return "local part cannot contain consecutive dots"
	}

	return ""
}

// checkDomain validates the domain part in its Unicode form (IDNA2008
// conversion already succeeded during parsing). Returns a detail string,
// or "" if ok.
func checkDomain(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}

	for _, label := range labels {
		if label == "" {
			return "domain contains empty label"
		}
		if len(label) > 63 {
			return "domain label exceeds 63 characters"
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "domain label cannot start or end with a hyphen"
		}
		for _, ch := range label {
			if unicode.IsSpace(ch) {
				return "domain contains whitespace"
			}
			if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '-' {
				return "domain label contains invalid character: " + string(ch)
			}
		}
	}

	tld := labels[len(labels)-1]
	allDigits := true
	for _, ch := range tld {
		if !unicode.IsDigit(ch) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return "TLD cannot be all digits"
	}

	return ""
}
