package coding

import (
	"fmt"
	"sync"

	"github.com/uplo-tech/errors"
)

// Cache lazily builds and caches coders keyed by (scheme, n, k, CAR repair
// flag), matching
// spec §5/§9: "codings cache ... guarded by its own mutex; populated lazily
// on first use."
type Cache struct {
	mu      sync.Mutex
	engines map[string]Engine
}

// NewCache returns an empty coder cache.
func NewCache() *Cache {
	return &Cache{engines: make(map[string]Engine)}
}

// Get returns the cached Engine for opts, building it on first use.
func (c *Cache) Get(opts Options) (Engine, error) {
	key := cacheKey(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.engines[key]; ok {
		return e, nil
	}

	e, err := newEngine(opts)
	if err != nil {
		return nil, err
	}
	c.engines[key] = e
	return e, nil
}

func cacheKey(opts Options) string {
	return fmt.Sprintf("%s/%d/%d/%v", opts.Scheme, opts.N, opts.K, opts.RepairUsingCAR)
}

// newEngine is the factory referenced by spec §9's "dynamic dispatch over
// coding schemes": today RS is the only implementor.
func newEngine(opts Options) (Engine, error) {
	switch opts.Scheme {
	case RS, "":
		return NewRSCoder(opts)
	default:
		return nil, errors.New("coding: unknown scheme " + string(opts.Scheme))
	}
}
