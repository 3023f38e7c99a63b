// Package interpret converts raw SMTP reply text into the normalized error
// taxonomy. Servers phrase the same condition in wildly different ways;
// the rule tables here reduce Gmail's "Account disabled", Yahoo's "This
// mailbox is disabled" and Exchange's "mailbox unavailable" to one kind.
//
// Classification is stateless and stable: the same (message, provider,
// code) triple always yields the same result.
package interpret

import (
	"regexp"
	"strings"

	"github.com/optimode/reachkit/types"
)

// Classification is the interpreter's verdict on one reply.
type Classification struct {
	Kind         types.ErrorKind
	Severity     types.Severity
	ProviderCode string
	// Message is the original reply text, verbatim.
	Message string
}

// rule matches a phrase (lowercased substring or regexp) and tags it.
type rule struct {
	substr   string
	re       *regexp.Regexp
	kind     types.ErrorKind
	severity types.Severity
	code     string
}

func (r rule) matches(lower string) bool {
	if r.re != nil {
		return r.re.MatchString(lower)
	}
	return strings.Contains(lower, r.substr)
}

// Provider-specific rules run before the generic ones so that, say,
// Yahoo's "delivery error: dd" beats the generic "delivery" phrases.
var providerRules = map[types.Provider][]rule{
	types.ProviderGmail: {
		{substr: "account disabled", kind: types.KindDisabled, severity: types.SeverityPermanent, code: "GMAIL_DISABLED"},
		{substr: "account is disabled", kind: types.KindDisabled, severity: types.SeverityPermanent, code: "GMAIL_DISABLED"},
		{substr: "over quota", kind: types.KindFullInbox, severity: types.SeverityTemporary, code: "GMAIL_FULL"},
		{substr: "receiving mail at a rate", kind: types.KindRateLimited, severity: types.SeverityTemporary, code: "GMAIL_RATE_LIMITED"},
		{substr: "does not exist", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "GMAIL_NO_MAILBOX"},
		{substr: "blocked using", kind: types.KindBlocked, severity: types.SeverityPermanent, code: "GMAIL_IP_BLOCKED"},
		{substr: "our system has detected", kind: types.KindBlocked, severity: types.SeverityTemporary, code: "GMAIL_SPAM_SUSPECT"},
	},
	types.ProviderYahoo: {
		{substr: "mailbox is disabled", kind: types.KindDisabled, severity: types.SeverityPermanent, code: "YAHOO_DISABLED"},
		{substr: "this mailbox is disabled", kind: types.KindDisabled, severity: types.SeverityPermanent, code: "YAHOO_DISABLED"},
		{substr: "mailbox is full", kind: types.KindFullInbox, severity: types.SeverityTemporary, code: "YAHOO_FULL"},
		{substr: "over quota", kind: types.KindFullInbox, severity: types.SeverityTemporary, code: "YAHOO_FULL"},
		{substr: "temporarily deferred", kind: types.KindGreyListed, severity: types.SeverityTemporary, code: "YAHOO_DEFERRED"},
		{substr: "delivery error: dd", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "YAHOO_NO_MAILBOX"},
	},
	types.ProviderHotmailB2C: {
		{substr: "requested action not taken: mailbox unavailable", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "HOTMAIL_NO_MAILBOX"},
		{substr: "account has been suspended", kind: types.KindDisabled, severity: types.SeverityPermanent, code: "HOTMAIL_DISABLED"},
		{substr: "mailbox unavailable", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "HOTMAIL_NO_MAILBOX"},
		{substr: "unfortunately, messages from", kind: types.KindBlocked, severity: types.SeverityTemporary, code: "HOTMAIL_IP_BLOCKED"},
	},
	types.ProviderHotmailB2B: {
		{substr: "recipient address rejected: access denied", kind: types.KindPolicyRejection, severity: types.SeverityPermanent, code: "EXCHANGE_ACCESS_DENIED"},
		{substr: "recipient not found", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "EXCHANGE_INVALID"},
		{substr: "user unknown", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "EXCHANGE_INVALID"},
		{substr: "mailbox full", kind: types.KindFullInbox, severity: types.SeverityTemporary, code: "EXCHANGE_FULL"},
		{substr: "relay access denied", kind: types.KindPolicyRejection, severity: types.SeverityPermanent, code: "EXCHANGE_RELAY_DENIED"},
		{substr: "unable to relay", kind: types.KindPolicyRejection, severity: types.SeverityPermanent, code: "EXCHANGE_RELAY_DENIED"},
		{substr: "content filter", kind: types.KindBlocked, severity: types.SeverityTemporary, code: "EXCHANGE_CONTENT_FILTER"},
		{substr: "banned sending ip", kind: types.KindBlocked, severity: types.SeverityPermanent, code: "EXCHANGE_IP_BLOCKED"},
		{substr: "frequency limit", kind: types.KindRateLimited, severity: types.SeverityTemporary, code: "EXCHANGE_RATE_LIMITED"},
	},
	types.ProviderProofpoint: {
		{substr: "request rejected", kind: types.KindBlocked, severity: types.SeverityTemporary, code: "PROOFPOINT_BLOCKED"},
		{substr: "please try again later", kind: types.KindGreyListed, severity: types.SeverityTemporary, code: "PROOFPOINT_DEFERRED"},
		{substr: "user unknown", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "PROOFPOINT_INVALID"},
	},
	types.ProviderMimecast: {
		{substr: "invalid recipient", kind: types.KindInvalid, severity: types.SeverityPermanent, code: "MIMECAST_INVALID"},
		{substr: "rejected by header-based", kind: types.KindBlocked, severity: types.SeverityPermanent, code: "MIMECAST_BLOCKED"},
		{substr: "poor reputation", kind: types.KindBlocked, severity: types.SeverityTemporary, code: "MIMECAST_REPUTATION"},
		{substr: "greylisted", kind: types.KindGreyListed, severity: types.SeverityTemporary, code: "MIMECAST_GREYLISTED"},
	},
}

// Generic phrases, provider-independent. Ordered: the first match wins,
// so narrower phrases come before broader ones.
var genericRules = []rule{
	{substr: "greylist", kind: types.KindGreyListed, severity: types.SeverityTemporary},
	{substr: "try again later", kind: types.KindGreyListed, severity: types.SeverityTemporary},
	{substr: "try later", kind: types.KindGreyListed, severity: types.SeverityTemporary},
	{substr: "temporarily deferred", kind: types.KindGreyListed, severity: types.SeverityTemporary},
	{substr: "account disabled", kind: types.KindDisabled, severity: types.SeverityPermanent},
	{substr: "account inactive", kind: types.KindDisabled, severity: types.SeverityPermanent},
	{substr: "disabled", kind: types.KindDisabled, severity: types.SeverityPermanent},
	{substr: "suspended", kind: types.KindDisabled, severity: types.SeverityPermanent},
	{substr: "mailbox is full", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "mailbox full", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "full inbox", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "over quota", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "quota exceeded", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "insufficient storage", kind: types.KindFullInbox, severity: types.SeverityTemporary},
	{substr: "user unknown", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "unknown user", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "no such user", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "no such recipient", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "does not exist", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "invalid recipient", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "recipient rejected", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "address rejected", kind: types.KindInvalid, severity: types.SeverityPermanent},
	{substr: "rate limit", kind: types.KindRateLimited, severity: types.SeverityTemporary},
	{substr: "too many connections", kind: types.KindRateLimited, severity: types.SeverityTemporary},
	{substr: "exceeded messaging limits", kind: types.KindRateLimited, severity: types.SeverityTemporary},
	{re: regexp.MustCompile(`spam|spamhaus|rbl|dnsbl|blacklist|blocklist|barracuda`), kind: types.KindBlocked, severity: types.SeverityPermanent},
	{substr: "blocked", kind: types.KindBlocked, severity: types.SeverityPermanent},
	{substr: "denied", kind: types.KindPolicyRejection, severity: types.SeverityPermanent},
	{substr: "policy", kind: types.KindPolicyRejection, severity: types.SeverityPermanent},
	{substr: "relay not permitted", kind: types.KindPolicyRejection, severity: types.SeverityPermanent},
	{substr: "timeout", kind: types.KindTimeout, severity: types.SeverityTemporary},
	{substr: "timed out", kind: types.KindTimeout, severity: types.SeverityTemporary},
	{substr: "connection refused", kind: types.KindConnectionError, severity: types.SeverityTemporary},
	{substr: "no such host", kind: types.KindConnectionError, severity: types.SeverityPermanent},
	{substr: "network unreachable", kind: types.KindConnectionError, severity: types.SeverityTemporary},
	{substr: "unavailable", kind: types.KindConnectionError, severity: types.SeverityTemporary},
}

// permanentSounding guards the 550 code fallback: a bare 550 with a phrase
// like "service unavailable" is not evidence the account is disabled.
var permanentSounding = regexp.MustCompile(`user|mailbox|account|recipient|address|exist`)

// Classify reduces one reply to the taxonomy. Provider rules run first,
// then the generic phrase table, then the code fallback. A reply that
// matches nothing keeps its verbatim message under kind Unknown.
func Classify(message string, provider types.Provider, code int) Classification {
	lower := strings.ToLower(message)

	for _, r := range providerRules[provider] {
		if r.matches(lower) {
			return Classification{Kind: r.kind, Severity: r.severity, ProviderCode: r.code, Message: message}
		}
	}

	for _, r := range genericRules {
		if r.matches(lower) {
			return Classification{Kind: r.kind, Severity: r.severity, Message: message}
		}
	}

	switch code {
	case 550:
		if permanentSounding.MatchString(lower) {
			return Classification{Kind: types.KindDisabled, Severity: types.SeverityPermanent, Message: message}
		}
	case 552:
		return Classification{Kind: types.KindFullInbox, Severity: types.SeverityTemporary, Message: message}
	case 450, 451:
		return Classification{Kind: types.KindRateLimited, Severity: types.SeverityTemporary, Message: message}
	}

	return Classification{Kind: types.KindUnknown, Severity: types.SeverityUnknown, Message: message}
}
