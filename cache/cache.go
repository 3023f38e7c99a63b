// Package cache is the layered caching substrate for reachkit. Every
// network-touching step memoizes through one of a fixed set of namespaces,
// each with its own size and TTL policy.
//
// A Backend is a namespace-aware key/value store. The in-process Memory
// backend (strict LRU + TTL) is the default; Redis implements the same
// contract for deployments that share verdicts between processes. Callers
// may supply their own Backend to the verifier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/optimode/reachkit/internal/metrics"
)

// Namespace identifies one logical cache. Namespaces never share keys,
// policies or eviction state.
type Namespace string

const (
	NamespaceMX          Namespace = "mx"
	NamespaceSyntax      Namespace = "syntax"
	NamespaceDisposable  Namespace = "disposable"
	NamespaceFree        Namespace = "free"
	NamespaceDomainValid Namespace = "domainValid"
	NamespaceSMTP        Namespace = "smtp"
	NamespaceSMTPPort    Namespace = "smtpPort"
	NamespaceSuggestion  Namespace = "domainSuggestion"
	NamespaceWHOIS       Namespace = "whois"
)

// Namespaces returns every namespace the substrate manages.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceMX,
		NamespaceSyntax,
		NamespaceDisposable,
		NamespaceFree,
		NamespaceDomainValid,
		NamespaceSMTP,
		NamespaceSMTPPort,
		NamespaceSuggestion,
		NamespaceWHOIS,
	}
}

// ErrUnknownNamespace is returned by backends for namespaces outside the
// fixed set.
var ErrUnknownNamespace = errors.New("cache: unknown namespace")

// Policy is the per-namespace eviction configuration.
type Policy struct {
	// MaxSize is the entry cap before LRU eviction. <= 0 means the
	// namespace default.
	MaxSize int
	// TTL is the time-to-live per entry. <= 0 means the namespace default.
	TTL time.Duration
}

// DefaultPolicies returns the deployment defaults. Network verdicts stay
// short-lived; pure lookups can live for hours.
func DefaultPolicies() map[Namespace]Policy {
	return map[Namespace]Policy{
		NamespaceMX:          {MaxSize: 1024, TTL: 30 * time.Minute},
		NamespaceSyntax:      {MaxSize: 4096, TTL: 12 * time.Hour},
		NamespaceDisposable:  {MaxSize: 4096, TTL: 24 * time.Hour},
		NamespaceFree:        {MaxSize: 4096, TTL: 24 * time.Hour},
		NamespaceDomainValid: {MaxSize: 2048, TTL: time.Hour},
		NamespaceSMTP:        {MaxSize: 1024, TTL: 20 * time.Minute},
		NamespaceSMTPPort:    {MaxSize: 1024, TTL: 6 * time.Hour},
		NamespaceSuggestion:  {MaxSize: 2048, TTL: 24 * time.Hour},
		NamespaceWHOIS:       {MaxSize: 256, TTL: 24 * time.Hour},
	}
}

// mergePolicies fills gaps in overrides with the defaults.
func mergePolicies(overrides map[Namespace]Policy) map[Namespace]Policy {
	merged := DefaultPolicies()
	for ns, p := range overrides {
		base := merged[ns]
		if p.MaxSize > 0 {
			base.MaxSize = p.MaxSize
		}
		if p.TTL > 0 {
			base.TTL = p.TTL
		}
		merged[ns] = base
	}
	return merged
}

// Backend is the uniform store interface every namespace lives behind.
// Implementations must be safe for concurrent readers and writers; a Get
// racing a Set for the same key returns either the old or the new value,
// never a torn one.
type Backend interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, ns Namespace, key string, value []byte) error
	Has(ctx context.Context, ns Namespace, key string) (bool, error)
	Delete(ctx context.Context, ns Namespace, key string) error
	Len(ctx context.Context, ns Namespace) (int, error)
	Clear(ctx context.Context, ns Namespace) error
	Close() error
}

// View is a typed window onto one namespace of a Backend, with a JSON
// codec. Views are soft: backend failures degrade to cache misses and
// dropped writes, because a cache outage must never fail a verification.
// A nil View (or nil backend) always misses, which lets callers skip the
// "is caching on" branch.
type View[V any] struct {
	backend Backend
	ns      Namespace
	log     zerolog.Logger
}

// NewView wraps one namespace of a backend.
func NewView[V any](b Backend, ns Namespace, log zerolog.Logger) *View[V] {
	return &View[V]{backend: b, ns: ns, log: log}
}

// Get returns the cached value for key, if present and fresh.
func (v *View[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if v == nil || v.backend == nil {
		return zero, false
	}
	raw, ok, err := v.backend.Get(ctx, v.ns, key)
	if err != nil {
		v.log.Debug().Err(err).Str("namespace", string(v.ns)).Str("key", key).Msg("cache get failed")
		metrics.CacheRequest(string(v.ns), false)
		return zero, false
	}
	if !ok {
		metrics.CacheRequest(string(v.ns), false)
		return zero, false
	}
	var val V
	if err := json.Unmarshal(raw, &val); err != nil {
		v.log.Debug().Err(err).Str("namespace", string(v.ns)).Str("key", key).Msg("cache entry corrupt")
		_ = v.backend.Delete(ctx, v.ns, key)
		metrics.CacheRequest(string(v.ns), false)
		return zero, false
	}
	metrics.CacheRequest(string(v.ns), true)
	return val, true
}

// Set stores the value for key. Failures are logged and dropped.
func (v *View[V]) Set(ctx context.Context, key string, val V) {
	if v == nil || v.backend == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		v.log.Debug().Err(err).Str("namespace", string(v.ns)).Msg("cache marshal failed")
		return
	}
	if err := v.backend.Set(ctx, v.ns, key, raw); err != nil {
		v.log.Debug().Err(err).Str("namespace", string(v.ns)).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes the entry for key, if any.
func (v *View[V]) Delete(ctx context.Context, key string) {
	if v == nil || v.backend == nil {
		return
	}
	if err := v.backend.Delete(ctx, v.ns, key); err != nil {
		v.log.Debug().Err(err).Str("namespace", string(v.ns)).Str("key", key).Msg("cache delete failed")
	}
}
