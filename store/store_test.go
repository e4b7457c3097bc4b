package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classic(qty int) CartItem {
	return CartItem{Product: Product{ID: "p1", Name: "Classic", Price: 5}, Quantity: qty}
}

func TestReplaceItemsIsWholesale(t *testing.T) {
	s, w := New()

	w.ReplaceItems([]CartItem{classic(1), {Product: Product{ID: "p2", Price: 2.5}, Quantity: 2}})
	require.Len(t, s.Snapshot().Items, 2)

	w.ReplaceItems([]CartItem{classic(2)})
	st := s.Snapshot()
	require.Equal(t, []CartItem{classic(2)}, st.Items)
	require.InDelta(t, 10.0, st.Total(), 1e-9)

	w.ReplaceItems(nil)
	require.Empty(t, s.Snapshot().Items)
	require.Zero(t, s.Total())
}

func TestPatchCustomerNeverReverts(t *testing.T) {
	s, w := New()

	w.PatchCustomer(Customer{Name: "Ana"})
	w.PatchCustomer(Customer{Phone: "555"})
	w.PatchCustomer(Customer{Name: "", Address: "Main St 1"})
	w.PatchCustomer(Customer{Name: "Ana Maria"})

	c := s.Snapshot().Customer
	assert.Equal(t, "Ana Maria", c.Name)
	assert.Equal(t, "555", c.Phone)
	assert.Equal(t, "Main St 1", c.Address)
	assert.Empty(t, c.Email)
	assert.True(t, c.Complete())
}

func TestCustomerComplete(t *testing.T) {
	assert.False(t, Customer{Name: "a", Phone: "b"}.Complete())
	assert.True(t, Customer{Name: "a", Phone: "b", Address: "c"}.Complete())
}

func TestSnapshotIsolation(t *testing.T) {
	s, w := New()
	w.ReplaceItems([]CartItem{classic(1)})

	snap := s.Snapshot()
	snap.Items[0].Quantity = 99

	require.Equal(t, 1, s.Snapshot().Items[0].Quantity)
}

func TestFocusedProductResolvesAgainstCatalog(t *testing.T) {
	s, w := New()
	w.FocusProduct("p1")

	_, ok := s.Snapshot().FocusedProduct()
	require.False(t, ok)

	s.LoadCatalog([]Product{{ID: "p1", Name: "Classic", Price: 5}})
	p, ok := s.Snapshot().FocusedProduct()
	require.True(t, ok)
	require.Equal(t, "Classic", p.Name)

	w.FocusProduct("nope")
	_, ok = s.Snapshot().FocusedProduct()
	require.False(t, ok)
}

func TestCheckoutAndSubscribe(t *testing.T) {
	s, w := New()

	var seen []bool
	unsubscribe := s.Subscribe(func(st State) {
		seen = append(seen, st.CheckoutVisible)
	})

	w.OpenCheckout()
	s.CloseCheckout()
	unsubscribe()
	w.OpenCheckout()

	require.Equal(t, []bool{true, false}, seen)
	require.True(t, s.Snapshot().CheckoutVisible)
	require.Same(t, s, w.Store())
}
