// Package probe holds the non-SMTP verification routes. A Prober answers
// the same deliverability question as the dialog engine, but over a
// provider's own HTTP surface; the Yahoo signup-form probe is the
// canonical implementation.
//
// Probes are opt-in. The orchestrator consults its registry only when the
// caller explicitly enabled the route for a provider.
package probe

import (
	"context"

	"github.com/optimode/reachkit/types"
)

// Prober verifies an address by a provider-specific route.
type Prober interface {
	// Provider is the tag this probe serves.
	Provider() types.Provider
	// Applies guards against misrouted domains.
	Applies(domain string) bool
	// Probe answers for local@domain. It never panics and never returns
	// a Go error: failures travel in the Probe record.
	Probe(ctx context.Context, local, domain string) types.Probe
}

// Registry maps provider tags to their probe routes. New providers plug
// in here without touching the orchestrator.
type Registry map[types.Provider]Prober

// Add registers p under its own provider tag.
func (r Registry) Add(p Prober) {
	r[p.Provider()] = p
}

// For returns the probe for a provider tag, if one is registered and
// applies to the domain.
func (r Registry) For(tag types.Provider, domain string) (Prober, bool) {
	p, ok := r[tag]
	if !ok || !p.Applies(domain) {
		return nil, false
	}
	return p, true
}
