package reservation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "reservation:"

// RedisStore is a Store backed by Redis, for deployments running more than
// one API instance. GETDEL makes Consume atomic across instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a RedisStore with the given TTL; ttl <= 0 falls
// back to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

// Create stores the reservation as JSON under a fresh token with the store
// TTL. Redis expiry handles sweeping.
func (s *RedisStore) Create(ctx context.Context, res *Reservation) (string, error) {
	now := s.now()
	res.Token = newToken()
	res.CreatedAt = now
	res.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(res)
	if err != nil {
		return "", errors.Wrap(err, "marshal reservation")
	}

	if err := s.client.Set(ctx, redisKeyPrefix+res.Token, payload, s.ttl).Err(); err != nil {
		return "", errors.Wrap(err, "store reservation")
	}
	return res.Token, nil
}

// Consume atomically fetches and deletes the reservation via GETDEL, so
// exactly one concurrent caller can win a given token.
func (s *RedisStore) Consume(ctx context.Context, token string) (*Reservation, error) {
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "consume reservation")
	}

	var res Reservation
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, errors.Wrap(err, "unmarshal reservation")
	}
	return &res, nil
}

// Peek reports token status without consuming it.
func (s *RedisStore) Peek(ctx context.Context, token string) (*Info, error) {
	ttl, err := s.client.PTTL(ctx, redisKeyPrefix+token).Result()
	if err != nil {
		return nil, errors.Wrap(err, "peek reservation")
	}
	if ttl < 0 {
		// -2: key missing, -1: no expiry set (never happens for our keys).
		return nil, ErrNotFound
	}

	now := s.now()
	return &Info{
		Valid:     true,
		ExpiresAt: now.Add(ttl),
		Remaining: ttl,
	}, nil
}
