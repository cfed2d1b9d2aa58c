package rotation

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const maxRevokedFamilies = 10000

// revokedFamilyCache remembers families burned by a theft response so that
// repeated attempts against them fail without touching the database. It is
// process-local and purely an optimization: the revoked flag in the store
// stays authoritative.
type revokedFamilyCache struct {
	cache *ristretto.Cache[string, time.Time]
	ttl   time.Duration
}

func newRevokedFamilyCache(ttl time.Duration) *revokedFamilyCache {
	c, err := ristretto.NewCache(&ristretto.Config[string, time.Time]{
		NumCounters: maxRevokedFamilies,
		MaxCost:     maxRevokedFamilies,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create revoked family cache")
	}

	return &revokedFamilyCache{
		cache: c,
		ttl:   ttl,
	}
}

func (c *revokedFamilyCache) Add(familyID string, revokedAt time.Time) {
	c.cache.SetWithTTL(familyID, revokedAt, 1, c.ttl)
	c.cache.Wait()
}

func (c *revokedFamilyCache) Contains(familyID string) bool {
	_, ok := c.cache.Get(familyID)
	return ok
}
