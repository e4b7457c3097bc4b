package commerce

import (
	"context"
	"slices"
	"sync"

	"github.com/codewandler/orderrt-go/store"
)

// Cart is the server side order of one session.
type Cart struct {
	Items    []store.CartItem `json:"items"`
	Customer store.Customer   `json:"customer"`
}

func (c Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

// Carts persists carts by session id. Get of an unknown session returns an
// empty cart and false.
type Carts interface {
	Get(ctx context.Context, sessionID string) (Cart, bool, error)
	Put(ctx context.Context, sessionID string, cart Cart) error
	Close() error
}

type MemoryCarts struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{carts: make(map[string]Cart)}
}

func (m *MemoryCarts) Get(_ context.Context, sessionID string) (Cart, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.carts[sessionID]
	c.Items = slices.Clone(c.Items)
	return c, ok, nil
}

func (m *MemoryCarts) Put(_ context.Context, sessionID string, cart Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart.Items = slices.Clone(cart.Items)
	m.carts[sessionID] = cart
	return nil
}

func (m *MemoryCarts) Close() error {
	return nil
}
