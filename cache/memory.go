package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is the default in-process backend: one strict-LRU store with TTL
// expiry per namespace. Reads of expired entries miss; the store reclaims
// them in the background. All operations are lock-protected inside the
// underlying LRU, so Memory is safe for concurrent use.
type Memory struct {
	stores map[Namespace]*expirable.LRU[string, []byte]
}

// NewMemory builds a Memory backend. Namespace policies missing from
// overrides fall back to DefaultPolicies.
func NewMemory(overrides map[Namespace]Policy) *Memory {
	policies := mergePolicies(overrides)
	stores := make(map[Namespace]*expirable.LRU[string, []byte], len(policies))
	for _, ns := range Namespaces() {
		p := policies[ns]
		stores[ns] = expirable.NewLRU[string, []byte](p.MaxSize, nil, p.TTL)
	}
	return &Memory{stores: stores}
}

func (m *Memory) store(ns Namespace) (*expirable.LRU[string, []byte], error) {
	s, ok := m.stores[ns]
	if !ok {
		return nil, ErrUnknownNamespace
	}
	return s, nil
}

// Get returns the fresh value for key. Stored bytes are copied on both
// sides so callers can never mutate a shared buffer.
func (m *Memory) Get(_ context.Context, ns Namespace, key string) ([]byte, bool, error) {
	s, err := m.store(ns)
	if err != nil {
		return nil, false, err
	}
	raw, ok := s.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, ns Namespace, key string, value []byte) error {
	s, err := m.store(ns)
	if err != nil {
		return err
	}
	owned := make([]byte, len(value))
	copy(owned, value)
	s.Add(key, owned)
	return nil
}

// Has reports presence without bumping recency.
func (m *Memory) Has(_ context.Context, ns Namespace, key string) (bool, error) {
	s, err := m.store(ns)
	if err != nil {
		return false, err
	}
	_, ok := s.Peek(key)
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, ns Namespace, key string) error {
	s, err := m.store(ns)
	if err != nil {
		return err
	}
	s.Remove(key)
	return nil
}

// Len counts stored entries. Entries past their TTL but not yet reclaimed
// may still be counted.
func (m *Memory) Len(_ context.Context, ns Namespace) (int, error) {
	s, err := m.store(ns)
	if err != nil {
		return 0, err
	}
	return s.Len(), nil
}

func (m *Memory) Clear(_ context.Context, ns Namespace) error {
	s, err := m.store(ns)
	if err != nil {
		return err
	}
	s.Purge()
	return nil
}

// Close purges every namespace.
func (m *Memory) Close() error {
	for _, s := range m.stores {
		s.Purge()
	}
	return nil
}
