package check

import (
	"context"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/internal/domainlist"
	"github.com/optimode/reachkit/internal/names"
	"github.com/optimode/reachkit/internal/suggest"
	"github.com/optimode/reachkit/types"
)

// MiscConfig selects which informational traits to collect.
type MiscConfig struct {
	CheckDisposable bool
	CheckFree       bool
	CheckRole       bool
	SuggestDomain   bool
	DetectName      bool
	SpamCheck       bool
}

// MiscChecker collects the traits that annotate a result without driving
// it: disposable/free/role membership, typo suggestions, derived names.
// Everything here is pure lookups; the cache only saves repeated edit
// distance scans on hot domains.
type MiscChecker struct {
	cfg            MiscConfig
	suggester      *suggest.Suggester
	suggestionView *cache.View[string]
}

// NewMiscChecker builds the checker. suggester may be nil when
// suggestions are off.
func NewMiscChecker(cfg MiscConfig, suggester *suggest.Suggester, suggestionView *cache.View[string]) *MiscChecker {
	return &MiscChecker{cfg: cfg, suggester: suggester, suggestionView: suggestionView}
}

// Check collects the configured traits for local@domain. domainUnicode
// is the display form; edit distance against it matches what the user
// typed better than Punycode does.
func (c *MiscChecker) Check(ctx context.Context, local, domain, domainUnicode string) *types.Misc {
	out := &types.Misc{}

	if c.cfg.CheckDisposable {
		out.Disposable = domainlist.IsDisposable(domain)
	}
	if c.cfg.CheckFree {
		out.Free = domainlist.IsFree(domain)
	}
	if c.cfg.CheckRole {
		out.RoleAccount = domainlist.IsRoleAccount(local)
	}
	if c.cfg.SuggestDomain && c.suggester != nil {
		out.Suggestion = c.suggestion(ctx, domainUnicode)
	}
	if c.cfg.DetectName {
		out.Name = names.Derive(local)
	}
	if c.cfg.SpamCheck {
		out.LooksRandom = names.LooksRandom(local)
	}

	return out
}

func (c *MiscChecker) suggestion(ctx context.Context, domain string) string {
	if cached, ok := c.suggestionView.Get(ctx, domain); ok {
		return cached
	}
	s := c.suggester.Suggest(domain)
	c.suggestionView.Set(ctx, domain, s)
	return s
}
