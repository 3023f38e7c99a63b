package check

import (
	"context"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/internal/resolve"
	"github.com/optimode/reachkit/types"
)

// MXChecker resolves mail exchangers for a domain. Resolution itself is
// cached inside the resolver; this level adds the cheap "does the domain
// receive mail at all" memo used by the fast helpers.
type MXChecker struct {
	resolver  *resolve.MXResolver
	validView *cache.View[bool]
}

// NewMXChecker builds the checker. validView may be nil to disable the
// domain-validity memo.
func NewMXChecker(r *resolve.MXResolver, validView *cache.View[bool]) *MXChecker {
	return &MXChecker{resolver: r, validView: validView}
}

// Check returns the classified MX answer for domain.
func (c *MXChecker) Check(ctx context.Context, domain string) *types.MX {
	mx := c.resolver.Resolve(ctx, domain)
	if c.validView != nil {
		c.validView.Set(ctx, domain, mx.Success)
	}
	return &mx
}

// DomainHasMX answers the validity memo without forcing a fresh
// resolution when one was done recently.
func (c *MXChecker) DomainHasMX(ctx context.Context, domain string) bool {
	if c.validView != nil {
		if valid, ok := c.validView.Get(ctx, domain); ok {
			return valid
		}
	}
	return c.Check(ctx, domain).Success
}
