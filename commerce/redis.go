package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCarts stores each cart as a JSON value under "cart:<session id>".
// Carts expire after the configured idle time.
type RedisCarts struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCarts connects to addr. A zero ttl keeps carts forever.
func NewRedisCarts(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCarts, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCarts{client: client, ttl: ttl}, nil
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (r *RedisCarts) Get(ctx context.Context, sessionID string) (Cart, bool, error) {
	data, err := r.client.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("redis get cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, false, fmt.Errorf("decode cart: %w", err)
	}
	return c, true, nil
}

func (r *RedisCarts) Put(ctx context.Context, sessionID string, cart Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, cartKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *RedisCarts) Close() error {
	return r.client.Close()
}
