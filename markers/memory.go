package markers

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MaxTTL is the longest TTL a MemoryStore honours
const MaxTTL = 7 * 24 * time.Hour

// MemoryStore keeps markers in a process-local LRU. It is only safe for a
// single-process deployment.
type MemoryStore struct {
	mu   sync.Mutex
	data *expirable.LRU[string, time.Time]
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		data: expirable.NewLRU[string, time.Time](capacity, nil, MaxTTL),
		now:  time.Now,
	}
}

func (s *MemoryStore) live(key string) bool {
	deadline, ok := s.data.Get(key)
	if !ok {
		return false
	}
	if !s.now().Before(deadline) {
		s.data.Remove(key)
		return false
	}
	return true
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) {
		return false, nil
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	s.data.Add(key, s.now().Add(ttl))
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Remove(key)
	return nil
}
