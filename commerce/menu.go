// Package commerce is the reference commerce backend of the voice ordering
// bridge: the menu, carts keyed by session, execution of the functions the
// realtime model calls and minting of ephemeral realtime keys.
package commerce

import (
	"slices"

	"github.com/codewandler/orderrt-go/store"
)

// Menu is the catalog served when no other catalog is configured.
var Menu = []store.Product{
	{ID: "1", Name: "Classic Burger", Price: 14.89, Category: "burger"},
	{ID: "2", Name: "BBQ Burger", Price: 16.99, Category: "burger"},
	{ID: "3", Name: "French Fries", Price: 5.79, Category: "side"},
	{ID: "4", Name: "Coca Cola", Price: 2.99, Category: "drink"},
}

type Catalog []store.Product

func (c Catalog) Find(id string) (store.Product, bool) {
	i := slices.IndexFunc(c, func(p store.Product) bool { return p.ID == id })
	if i < 0 {
		return store.Product{}, false
	}
	return c[i], true
}
