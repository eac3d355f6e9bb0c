package repository

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/model"
)

const (
	defaultCacheMaxCost = 64 << 20
	defaultCacheTTL     = 10 * time.Minute
)

// Cached puts an in-process L1 in front of another Repository for datasets
// and place details. Plans and progress always go to the backing store.
type Cached struct {
	Repository
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

type CachedOption func(*cachedConfig)

type cachedConfig struct {
	maxCost int64
	ttl     time.Duration
}

// WithCacheMaxCost sets the L1 capacity in bytes of serialized values
func WithCacheMaxCost(n int64) CachedOption {
	return func(c *cachedConfig) {
		c.maxCost = n
	}
}

// WithCacheTTL sets how long an entry stays in the L1. Zero keeps entries
// until evicted.
func WithCacheTTL(ttl time.Duration) CachedOption {
	return func(c *cachedConfig) {
		c.ttl = ttl
	}
}

// NewCached wraps base with an L1 cache
func NewCached(base Repository, opts ...CachedOption) (*Cached, error) {
	cfg := cachedConfig{maxCost: defaultCacheMaxCost, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxCost <= 0 {
		cfg.maxCost = defaultCacheMaxCost
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     cfg.maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create L1 cache", goerr.V("max_cost", cfg.maxCost))
	}

	return &Cached{Repository: base, cache: cache, ttl: cfg.ttl}, nil
}

// Close releases the L1. The backing store is not closed.
func (c *Cached) Close() {
	c.cache.Close()
}

func (c *Cached) set(key string, raw []byte) {
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, raw, int64(len(raw)), c.ttl)
	} else {
		c.cache.Set(key, raw, int64(len(raw)))
	}
	c.cache.Wait()
}

func (c *Cached) GetDataset(ctx context.Context, key model.Fingerprint) (*model.Dataset, error) {
	l1Key := badgerDatasetPrefix + key.Hash()
	if raw, ok := c.cache.Get(l1Key); ok {
		return model.UnmarshalDataset(raw)
	}

	ds, err := c.Repository.GetDataset(ctx, key)
	if err != nil || ds == nil {
		return ds, err
	}
	if raw, err := ds.Marshal(); err == nil {
		c.set(l1Key, raw)
	}
	return ds, nil
}

func (c *Cached) PutDataset(ctx context.Context, key model.Fingerprint, ds *model.Dataset) error {
	if err := c.Repository.PutDataset(ctx, key, ds); err != nil {
		return err
	}
	raw, err := ds.Marshal()
	if err != nil {
		return err
	}
	c.set(badgerDatasetPrefix+key.Hash(), raw)
	return nil
}

func (c *Cached) GetPlaceDetails(ctx context.Context, id model.PlaceID) (model.PlaceDetails, error) {
	l1Key := badgerDetailsPrefix + string(id)
	if raw, ok := c.cache.Get(l1Key); ok {
		var details model.PlaceDetails
		if err := unmarshalJSON(raw, &details); err == nil {
			return details, nil
		}
	}

	details, err := c.Repository.GetPlaceDetails(ctx, id)
	if err != nil || details == nil {
		return details, err
	}
	if raw, err := marshalJSON(details); err == nil {
		c.set(l1Key, raw)
	}
	return details, nil
}

func (c *Cached) PutPlaceDetails(ctx context.Context, id model.PlaceID, details model.PlaceDetails) error {
	if err := c.Repository.PutPlaceDetails(ctx, id, details); err != nil {
		return err
	}
	if raw, err := marshalJSON(details); err == nil {
		c.set(badgerDetailsPrefix+string(id), raw)
	}
	return nil
}
