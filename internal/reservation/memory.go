package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a single-instance in-memory Store. A single mutex around
// the map makes Consume a delete-and-return, which is all the atomicity the
// consume-once guarantee needs.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*Reservation
}

// NewMemoryStore creates a MemoryStore with the given TTL; ttl <= 0 falls
// back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*Reservation),
	}
}

// Create stores the reservation under a fresh opaque token.
func (s *MemoryStore) Create(_ context.Context, res *Reservation) (string, error) {
	now := s.now()
	res.Token = newToken()
	res.CreatedAt = now
	res.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	s.entries[res.Token] = res
	s.mu.Unlock()

	return res.Token, nil
}

// Consume removes and returns the reservation. Expired entries are treated
// as absent even before the sweeper collects them.
func (s *MemoryStore) Consume(_ context.Context, token string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, token)

	if s.now().After(res.ExpiresAt) {
		return nil, ErrNotFound
	}
	return res, nil
}

// Peek reports token status without consuming it.
func (s *MemoryStore) Peek(_ context.Context, token string) (*Info, error) {
	s.mu.Lock()
	res, ok := s.entries[token]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	if now.After(res.ExpiresAt) {
		return &Info{Valid: false, ExpiresAt: res.ExpiresAt}, nil
	}
	return &Info{
		Valid:     true,
		ExpiresAt: res.ExpiresAt,
		Remaining: res.ExpiresAt.Sub(now),
	}, nil
}

// StartSweeper launches a background goroutine that drops expired entries
// every interval until the context is cancelled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.sweep(now)
			}
		}
	}()
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, res := range s.entries {
		if now.After(res.ExpiresAt) {
			delete(s.entries, token)
		}
	}
}

// newToken returns an opaque token with enough randomness to be
// unguessable. Two UUIDs keep it opaque without a custom alphabet.
func newToken() string {
	return uuid.NewString() + uuid.NewString()[:8]
}
