package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/lumenshop/checkout/internal/domain/cart"
)

// Redis stores carts as JSON values with a TTL, so carts survive restarts
// and are shared across instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ cart.Store = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func cartKey(sessionID string) string { return "cart:" + sessionID }

func (s *Redis) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	raw, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return &cart.Cart{}, nil
	case err != nil:
		return nil, errors.Wrap(err, "get cart")
	}
	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &c, nil
}

func (s *Redis) Put(ctx context.Context, sessionID string, c *cart.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.client.Set(ctx, cartKey(sessionID), raw, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set cart")
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
