package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndConsume(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx, &Reservation{CustomerID: "c1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	res, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "c1", res.CustomerID)
	assert.Equal(t, token, res.Token)

	// Second consume of the same token must fail.
	_, err = store.Consume(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConsumeUnknownToken(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	_, err := store.Consume(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConsumeExactlyOnceUnderConcurrency(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx, &Reservation{CustomerID: "c1"})
	require.NoError(t, err)

	const workers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, token); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryStore_ExpiredTokenIsGone(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	token, err := store.Create(context.Background(), &Reservation{CustomerID: "c1"})
	require.NoError(t, err)

	// Jump past the TTL without waiting for the sweeper.
	now = now.Add(2 * time.Minute)

	_, err = store.Consume(context.Background(), token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Peek(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	token, err := store.Create(context.Background(), &Reservation{CustomerID: "c1"})
	require.NoError(t, err)

	info, err := store.Peek(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, now.Add(time.Minute), info.ExpiresAt)
	assert.Equal(t, time.Minute, info.Remaining)

	// Peek does not consume.
	_, err = store.Consume(context.Background(), token)
	require.NoError(t, err)

	_, err = store.Peek(context.Background(), token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PeekExpired(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	token, err := store.Create(context.Background(), &Reservation{CustomerID: "c1"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	info, err := store.Peek(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, info.Valid)
}

func TestMemoryStore_SweepDropsExpired(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	expired, err := store.Create(context.Background(), &Reservation{CustomerID: "c1"})
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	fresh, err := store.Create(context.Background(), &Reservation{CustomerID: "c2"})
	require.NoError(t, err)

	store.sweep(now.Add(45 * time.Second))

	store.mu.Lock()
	_, hasExpired := store.entries[expired]
	_, hasFresh := store.entries[fresh]
	store.mu.Unlock()

	assert.False(t, hasExpired)
	assert.True(t, hasFresh)
}

func TestMemoryStore_DefaultTTL(t *testing.T) {
	store := NewMemoryStore(0)
	assert.Equal(t, DefaultTTL, store.ttl)
}
