package approval

import (
	"context"
	"errors"
	"time"
)

// Store is the shared approval state behind the valkey broker: a pending
// marker per held action plus a first-write-wins verdict key. The key is the
// run/action pair; implementations own the keyspace layout.
type Store interface {
	PublishPending(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	ClearPending(ctx context.Context, key string) error
	ReadVerdict(ctx context.Context, key string) (string, error)
	WriteVerdict(ctx context.Context, key, verdict string, ttl time.Duration) (bool, error)
	Close() error
}

// ErrNotFound signals that no verdict exists yet for a held action.
var ErrNotFound = errors.New("approval key not found")
