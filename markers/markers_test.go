package markers

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	ok, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("Expected fresh key to be absent")
	}

	set, err := s.SetIfAbsent(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("SetIfAbsent failed: %v", err)
	}
	if !set {
		t.Fatal("Expected first SetIfAbsent to succeed")
	}

	set, _ = s.SetIfAbsent(ctx, key, time.Hour)
	if set {
		t.Error("Expected second SetIfAbsent to report existing key")
	}

	ok, _ = s.Exists(ctx, key)
	if !ok {
		t.Error("Expected key to exist after SetIfAbsent")
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	ok, _ = s.Exists(ctx, key)
	if ok {
		t.Error("Expected key to be gone after Delete")
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(100))
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(100)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.SetIfAbsent(ctx, "k", 6*time.Hour)

	now = now.Add(5 * time.Hour)
	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Error("Expected marker to survive before its TTL")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("Expected marker to expire after its TTL")
	}

	set, _ := s.SetIfAbsent(ctx, "k", time.Hour)
	if !set {
		t.Error("Expected expired marker to be settable again")
	}
}

func TestMemoryStoreConcurrentSetIfAbsent(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.SetIfAbsent(ctx, "race", time.Hour); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners.Load())
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("FEDINBOX_TEST_REDIS")
	if url == "" {
		t.Skip("FEDINBOX_TEST_REDIS not set")
	}
	s, err := NewRedisStore(url)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}
