package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// cachedCatalog serves repeated lookups from a CacheStore and collapses
// concurrent identical lookups into one provider call.
type cachedCatalog struct {
	next   CoreCatalog
	store  ports.CacheStore
	ttl    time.Duration
	prefix string
	sf     singleflight.Group
}

// CacheMiddleware creates middleware that caches normalized offers for ttl.
// Cache failures never fail a lookup; they fall through to the provider.
// Manufacturer is excluded from the key because filtering happens after
// the provider call. An empty prefix leaves namespacing to the store.
func CacheMiddleware(store ports.CacheStore, ttl time.Duration, prefix string) Middleware {
	return func(next CoreCatalog) CoreCatalog {
		return &cachedCatalog{
			next:   next,
			store:  store,
			ttl:    ttl,
			prefix: prefix,
		}
	}
}

// DoLookup returns cached offers when present, otherwise calls through.
func (c *cachedCatalog) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	key := c.key(req)

	if data, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var offers []domain.CatalogOffer
		if json.Unmarshal(data, &offers) == nil {
			return offers, nil
		}
		// Corrupt entries are dropped and refetched.
		_ = c.store.Delete(ctx, key)
	}

	// The shared call ignores any one waiter's cancellation; each caller
	// stops waiting on its own ctx. TimeoutMiddleware still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		offers, err := c.next.DoLookup(shared, req)
		if err != nil {
			return nil, err
		}
		if data, merr := json.Marshal(offers); merr == nil {
			_ = c.store.Set(shared, key, data, c.ttl)
		}
		return offers, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// Each caller gets its own slice header; offers are values.
	offers := res.Val.([]domain.CatalogOffer)
	out := make([]domain.CatalogOffer, len(offers))
	copy(out, offers)
	return out, nil
}

// ProviderID returns the identifier from the wrapped implementation.
func (c *cachedCatalog) ProviderID() string { return c.next.ProviderID() }

func (c *cachedCatalog) key(req LookupRequest) string {
	key := fmt.Sprintf("offers:%s:%s:%d:%s",
		c.next.ProviderID(), req.Kind, req.Limit, strings.ToUpper(strings.TrimSpace(req.Term)))
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}
