package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"phonorule.dev/machine/redis"
	"phonorule.dev/machine/rules"
)

const CacheDB redis.DB = 3

const defaultCacheTTL = 24 * time.Hour

// DerivationCache stores finished derivations keyed by rules.Ruleset.CacheKey.
type DerivationCache struct {
	client redis.Client
	ttl    time.Duration
}

func derivationKey(key uint64) string {
	return fmt.Sprintf("derivation:%016x", key)
}

// Get returns the cached derivation for key, if any.
func (cache DerivationCache) Get(key uint64) (*rules.Derivation, bool, error) {
	b, err := cache.client.Get(derivationKey(key))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var d rules.Derivation
	if err = json.Unmarshal(b, &d); err != nil {
		return nil, false, err
	}
	return &d, true, nil
}

func (cache DerivationCache) Set(key uint64, d *rules.Derivation) error {
	return cache.client.SaveDocument(derivationKey(key), d, cache.ttl)
}
