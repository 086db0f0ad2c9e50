package cache

import (
	"context"
	"time"
)

// Cache is the expiring key-value store the rate converter consults. Stale
// reads are acceptable; implementations do not need to be strongly consistent.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}
