package dataproject

import (
	"fmt"

	"lineupwatch/internal/cachestore"
	"lineupwatch/internal/federation"
	"lineupwatch/pkg/logx"
)

// Pool holds one cached Fetcher per registered federation, built once at
// startup. Lookups by unknown slug are a configuration error.
type Pool struct {
	reg      *federation.Registry
	fetchers map[federation.Slug]Fetcher
}

func NewPool(reg *federation.Registry, cfg Config, ttl TTLPolicy, store cachestore.Store, log logx.Logger) *Pool {
	fetchers := make(map[federation.Slug]Fetcher, reg.Len())
	for _, fed := range reg.All() {
		raw := NewClient(fed, cfg, log)
		fetchers[fed.Slug] = NewCachedFetcher(raw, store, ttl, log)
	}
	return &Pool{reg: reg, fetchers: fetchers}
}

func (p *Pool) Fetcher(slug federation.Slug) (Fetcher, error) {
	f, ok := p.fetchers[slug]
	if !ok {
		return nil, fmt.Errorf("%w: federation %q", ErrConfiguration, slug)
	}
	return f, nil
}

// Apply hot-swaps the TTL policy on every cached fetcher.
func (p *Pool) Apply(ttl TTLPolicy) {
	for _, f := range p.fetchers {
		if cf, ok := f.(*CachedFetcher); ok {
			cf.Apply(ttl)
		}
	}
}

// All returns the fetchers in registry declaration order.
func (p *Pool) All() []Fetcher {
	out := make([]Fetcher, 0, len(p.fetchers))
	for _, fed := range p.reg.All() {
		out = append(out, p.fetchers[fed.Slug])
	}
	return out
}
