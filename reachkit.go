// Package reachkit verifies whether an email address exists and is
// deliverable, without sending mail. It answers a reachability verdict
// (safe, risky, invalid, unknown) together with structured evidence:
// syntax classification, MX resolution, the SMTP dialog outcome,
// provider classification and miscellaneous traits such as disposable
// and free-provider membership or a typo suggestion.
//
// Basic usage (syntax, MX and trait lookups only):
//
//	result, err := reachkit.New().VerifyOne(ctx, "user@example.com")
//
// Full pipeline with the SMTP probe:
//
//	v := reachkit.New().
//	    WithSMTP(reachkit.SMTPOptions{HelloName: "verify.myapp.com"}).
//	    WithSuggestions(reachkit.SuggestOptions{}).
//	    WithProviderOptimizations()
//	defer v.Close()
//
//	result, err := v.VerifyOne(ctx, "user@example.com")
//
// Verifiers are safe for concurrent use. Call Close when done to release
// the cache backend the verifier created.
package reachkit

import "github.com/optimode/reachkit/types"

// Result is a re-export from the types package so that consumers don't
// need to import types directly.
type Result = types.Result

// Reachable is the top-level verdict. Re-exported.
type Reachable = types.Reachable

// Verdict constants re-exported.
const (
	ReachableSafe    = types.ReachableSafe
	ReachableRisky   = types.ReachableRisky
	ReachableInvalid = types.ReachableInvalid
	ReachableUnknown = types.ReachableUnknown
)

// Deliverability constants re-exported.
const (
	DeliverableYes     = types.DeliverableYes
	DeliverableNo      = types.DeliverableNo
	DeliverableUnknown = types.DeliverableUnknown
)
