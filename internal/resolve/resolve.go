// Package resolve turns domains into classified MX answers. Lookups are
// deduplicated in flight and memoized in the mx cache namespace, so a burst
// of verifications for one domain costs a single DNS query.
package resolve

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/optimode/reachkit/cache"
	"github.com/optimode/reachkit/types"
)

// Resolver is the slice of net.Resolver the engine needs. Satisfied by
// net.DefaultResolver and by mockdns.Resolver in tests.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

const defaultTimeout = 5 * time.Second

// MXResolver resolves and classifies MX records.
type MXResolver struct {
	r       Resolver
	view    *cache.View[types.MX]
	timeout time.Duration
	group   singleflight.Group
}

// New builds an MXResolver. A nil resolver means net.DefaultResolver; a nil
// view disables memoization.
func New(r Resolver, view *cache.View[types.MX], timeout time.Duration) *MXResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MXResolver{r: r, view: view, timeout: timeout}
}

// Resolve returns the MX answer for domain, sorted ascending by priority.
// An empty record set is a failure ("No MX records found"); transport
// errors carry a stable code (NXDOMAIN, TIMEOUT, SERVFAIL). Negative
// answers that are definitive (no records, NXDOMAIN) are cached alongside
// successes; transient failures are not.
func (m *MXResolver) Resolve(ctx context.Context, domain string) types.MX {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))

	if cached, ok := m.view.Get(ctx, domain); ok {
		return cached
	}

	v, _, _ := m.group.Do(domain, func() (interface{}, error) {
		result := m.lookup(ctx, domain)
		if cacheable(result) {
			m.view.Set(ctx, domain, result)
		}
		return result, nil
	})
	return v.(types.MX)
}

func (m *MXResolver) lookup(ctx context.Context, domain string) types.MX {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	records, err := m.r.LookupMX(ctx, domain)
	if err != nil {
		return classifyError(err)
	}

	out := make([]types.MXRecord, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		host := strings.TrimSuffix(rec.Host, ".")
		// A lone "." exchange is a null MX (RFC 7505): the domain
		// explicitly refuses mail.
		if host == "" {
			continue
		}
		out = append(out, types.MXRecord{
			Exchange: strings.ToLower(host),
			Priority: rec.Pref,
		})
	}
	if len(out) == 0 {
		return types.MX{Success: false, Error: "No MX records found"}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return types.MX{Success: true, Records: out}
}

func classifyError(err error) types.MX {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return types.MX{Success: false, Error: dnsErr.Err, Code: types.DNSCodeNXDomain}
		case dnsErr.IsTimeout:
			return types.MX{Success: false, Error: dnsErr.Err, Code: types.DNSCodeTimeout}
		default:
			return types.MX{Success: false, Error: dnsErr.Err, Code: types.DNSCodeServfail}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.MX{Success: false, Error: "DNS lookup timed out", Code: types.DNSCodeTimeout}
	}
	return types.MX{Success: false, Error: err.Error(), Code: types.DNSCodeServfail}
}

// cacheable says whether an answer is stable enough to memoize. Timeouts
// and server failures are transient and must be retried on the next call.
func cacheable(mx types.MX) bool {
	if mx.Success {
		return true
	}
	return mx.Code == types.DNSCodeNXDomain || mx.Code == ""
}
