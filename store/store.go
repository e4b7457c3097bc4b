// Package store holds the order state shared between the realtime bridge and
// the user interface.
//
// The state is split into a read handle ([Store]) that the interface
// observes and a write handle ([Writer]) held by the bridge. The interface
// mutates the state only through the explicit actions on [Store]
// (loading the catalog and closing the checkout view).
package store

import (
	"slices"
	"sync"
)

type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price times quantity.
func (i CartItem) Subtotal() float64 {
	return i.Product.Price * float64(i.Quantity)
}

type Customer struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Complete reports whether the delivery data is usable. Email is optional.
func (c Customer) Complete() bool {
	return c.Name != "" && c.Phone != "" && c.Address != ""
}

// Merge copies every non-empty field of patch into c.
func (c Customer) Merge(patch Customer) Customer {
	if patch.Name != "" {
		c.Name = patch.Name
	}
	if patch.Phone != "" {
		c.Phone = patch.Phone
	}
	if patch.Email != "" {
		c.Email = patch.Email
	}
	if patch.Address != "" {
		c.Address = patch.Address
	}
	return c
}

// State is an immutable snapshot of the store.
type State struct {
	SessionID        string
	Items            []CartItem
	FocusedProductID string
	Customer         Customer
	CheckoutVisible  bool
	Catalog          []Product
}

// Total is recomputed from Items on every call.
func (s State) Total() float64 {
	var total float64
	for _, item := range s.Items {
		total += item.Subtotal()
	}
	return total
}

// FocusedProduct resolves the focused id against the loaded catalog.
func (s State) FocusedProduct() (Product, bool) {
	if s.FocusedProductID == "" {
		return Product{}, false
	}
	for _, p := range s.Catalog {
		if p.ID == s.FocusedProductID {
			return p, true
		}
	}
	return Product{}, false
}

type Listener func(State)

type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// Writer is the mutation handle for business state.
type Writer struct {
	s *Store
}

// New creates an empty store and its write handle.
func New() (*Store, *Writer) {
	s := &Store{listeners: make(map[int]Listener)}
	return s, &Writer{s: s}
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.Items = slices.Clone(s.state.Items)
	st.Catalog = slices.Clone(s.state.Catalog)
	return st
}

func (s *Store) Total() float64 {
	return s.Snapshot().Total()
}

// Subscribe registers l for every change. It returns a func that removes the
// listener.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// LoadCatalog replaces the products the interface currently displays.
func (s *Store) LoadCatalog(products []Product) {
	s.update(func(st *State) {
		st.Catalog = slices.Clone(products)
	})
}

// CloseCheckout hides the checkout view.
func (s *Store) CloseCheckout() {
	s.update(func(st *State) {
		st.CheckoutVisible = false
	})
}

func (s *Store) update(f func(st *State)) {
	s.mu.Lock()
	f(&s.state)
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Store returns the read handle.
func (w *Writer) Store() *Store {
	return w.s
}

func (w *Writer) SetSessionID(id string) {
	w.s.update(func(st *State) {
		st.SessionID = id
	})
}

// ReplaceItems replaces the cart wholesale.
func (w *Writer) ReplaceItems(items []CartItem) {
	w.s.update(func(st *State) {
		st.Items = slices.Clone(items)
	})
}

func (w *Writer) FocusProduct(id string) {
	w.s.update(func(st *State) {
		st.FocusedProductID = id
	})
}

// PatchCustomer merges the non-empty fields of patch. Known fields are never
// cleared.
func (w *Writer) PatchCustomer(patch Customer) {
	w.s.update(func(st *State) {
		st.Customer = st.Customer.Merge(patch)
	})
}

func (w *Writer) OpenCheckout() {
	w.s.update(func(st *State) {
		st.CheckoutVisible = true
	})
}
