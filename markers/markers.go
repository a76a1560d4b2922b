// Package markers provides short-lived keyed flags shared across inbox
// workers. They back the delete-before-create race handling and the
// in-progress guards of long running activities.
package markers

import (
	"context"
	"time"
)

// Store is a TTL-capable key set. SetIfAbsent must be atomic across all
// workers sharing the store.
type Store interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
