package commerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/codewandler/orderrt-go/store"
)

var ErrUnknownFunction = errors.New("function not implemented")

// Result is the JSON answer to a function call. Items and Customer are set
// whenever the call changed them so the caller can replace its copy.
type Result struct {
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
	Message         string            `json:"message,omitempty"`
	Menu            []store.Product   `json:"menu,omitempty"`
	Product         *store.Product    `json:"product,omitempty"`
	Items           *[]store.CartItem `json:"items,omitempty"`
	Total           *float64          `json:"total,omitempty"`
	Count           *int              `json:"count,omitempty"`
	Customer        *store.Customer   `json:"customer,omitempty"`
	Ready           *bool             `json:"ready,omitempty"`
	OpenCheckout    bool              `json:"open_checkout,omitempty"`
	HasCustomerData *bool             `json:"has_customer_data,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

func ptr[T any](v T) *T {
	return &v
}

// Service executes ordering functions against the carts.
type Service struct {
	catalog Catalog
	carts   Carts
	schemas argumentSchemas
	logger  *slog.Logger

	// serializes read-modify-write of carts
	mu sync.Mutex
}

func NewService(catalog Catalog, carts Carts, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	schemas, err := compileSchemas(Tools())
	if err != nil {
		// the tool catalog is static
		panic(err)
	}
	return &Service{catalog: catalog, carts: carts, schemas: schemas, logger: logger}
}

func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Cart returns the cart of sessionID, empty if the session is unknown.
func (s *Service) Cart(ctx context.Context, sessionID string) (Cart, error) {
	c, _, err := s.carts.Get(ctx, sessionID)
	if c.Items == nil {
		c.Items = []store.CartItem{}
	}
	return c, err
}

// Execute runs one function call. Business failures are reported in the
// result; the error is only set when the cart store fails.
func (s *Service) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	sessionID := stringArg(args, "session_id")
	logger := s.logger.With(slog.String("function", name), slog.String("session_id", sessionID))
	logger.Debug("execute function", slog.Any("args", args))

	if err := s.schemas.validate(name, args); err != nil {
		logger.Warn("invalid arguments", slog.Any("err", err))
		return failure("invalid arguments: %v", err), nil
	}

	switch name {
	case FuncGetMenu:
		return Result{Success: true, Menu: s.catalog, Message: "Here is the full menu."}, nil
	case FuncShowProduct:
		return s.showProduct(args), nil
	}

	if sessionID == "" {
		return failure("session_id is required"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, found, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	var (
		res     Result
		changed bool
	)
	switch name {
	case FuncAddToCart:
		res, changed = s.addToCart(&cart, args)
	case FuncGetCart:
		res = Result{Success: true, Items: ptr(nonNil(cart.Items)), Total: ptr(cart.Total()), Count: ptr(len(cart.Items))}
	case FuncRemoveFromCart:
		if !found {
			return failure("cart not found"), nil
		}
		res, changed = removeFromCart(&cart, args)
	case FuncSaveCustomerData:
		res, changed = saveCustomer(&cart, args)
	case FuncReadyForCheckout:
		res = readyForCheckout(cart)
	default:
		logger.Warn("unknown function")
		return failure("%v: %s", ErrUnknownFunction, name), nil
	}

	if changed {
		if err := s.carts.Put(ctx, sessionID, cart); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (s *Service) showProduct(args map[string]any) Result {
	id := stringArg(args, "product_id")
	p, ok := s.catalog.Find(id)
	if !ok {
		return failure("product not found: %s", id)
	}
	return Result{Success: true, Product: &p, Message: "Showing " + p.Name + "."}
}

func (s *Service) addToCart(cart *Cart, args map[string]any) (Result, bool) {
	id := stringArg(args, "product_id")
	p, ok := s.catalog.Find(id)
	if !ok {
		return failure("product not found: %s", id), false
	}

	qty, ok := intArg(args, "quantity", 1)
	if !ok || qty < 1 {
		return failure("invalid quantity"), false
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].Product.ID == p.ID {
			cart.Items[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, store.CartItem{Product: p, Quantity: qty})
	}

	return Result{
		Success: true,
		Items:   ptr(nonNil(cart.Items)),
		Total:   ptr(cart.Total()),
		Message: fmt.Sprintf("Added %d %s to the cart.", qty, p.Name),
	}, true
}

func removeFromCart(cart *Cart, args map[string]any) (Result, bool) {
	id := stringArg(args, "product_id")
	kept := make([]store.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Product.ID != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(cart.Items) {
		return failure("product not in cart: %s", id), false
	}

	cart.Items = kept
	return Result{Success: true, Items: ptr(kept), Total: ptr(cart.Total())}, true
}

func saveCustomer(cart *Cart, args map[string]any) (Result, bool) {
	cart.Customer = cart.Customer.Merge(store.Customer{
		Name:    stringArg(args, "name"),
		Phone:   stringArg(args, "phone"),
		Email:   stringArg(args, "email"),
		Address: stringArg(args, "address"),
	})
	return Result{
		Success:  true,
		Customer: ptr(cart.Customer),
		Message:  "Customer data saved.",
	}, true
}

func readyForCheckout(cart Cart) Result {
	ready := len(cart.Items) > 0
	res := Result{
		Success:         true,
		Ready:           ptr(ready),
		OpenCheckout:    ready,
		Count:           ptr(len(cart.Items)),
		HasCustomerData: ptr(cart.Customer.Complete()),
		Message:         "Ready to proceed to payment.",
	}
	if !ready {
		res.Message = "The cart is empty."
	}
	return res
}

func nonNil(items []store.CartItem) []store.CartItem {
	if items == nil {
		return []store.CartItem{}
	}
	return items
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func intArg(args map[string]any, key string, def int) (int, bool) {
	switch v := args[key].(type) {
	case nil:
		return def, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
