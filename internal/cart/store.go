package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "storefront:cart:"
	maxTxAttempts = 5
)

var ErrConcurrentUpdate = errors.New("cart changed concurrently")

// Store persists carts in Redis, one JSON document per cart id.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func key(id string) string { return keyPrefix + id }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, g getter, id string) (Cart, error) {
	data, err := g.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{ID: id}, nil
	}
	if err != nil {
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart %s: %w", id, err)
	}
	c.ID = id
	return c, nil
}

// Load restores a cart. A cart never saved comes back empty.
func (s *Store) Load(ctx context.Context, id string) (Cart, error) {
	return load(ctx, s.rdb, id)
}

// Mutate applies fn to the stored cart and saves the result in one optimistic transaction.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*Cart) error) (Cart, error) {
	var out Cart
	txf := func(tx *redis.Tx) error {
		c, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), data, s.ttl)
			return nil
		})
		if err == nil {
			out = c
		}
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return Cart{}, ErrConcurrentUpdate
}

// Clear removes the cart entirely.
func (s *Store) Clear(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}
