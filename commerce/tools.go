package commerce

import (
	"fmt"

	"github.com/codewandler/orderrt-go/tool"
)

// Function names executed by the service.
const (
	FuncGetMenu          = "get_menu"
	FuncAddToCart        = "add_to_cart"
	FuncGetCart          = "get_cart"
	FuncRemoveFromCart   = "remove_from_cart"
	FuncSaveCustomerData = "save_customer_data"
	FuncShowProduct      = "show_product"
	FuncReadyForCheckout = "ready_for_checkout"
)

var sessionProp = tool.Property{Type: "string", Description: "Session id from the instructions."}

// Tools declares the ordering functions to the realtime model.
func Tools() []tool.Tool {
	return []tool.Tool{
		tool.Function(FuncGetMenu, "Get the full menu with every available product.", nil),
		tool.Function(FuncAddToCart, "Add a product to the customer's cart.", tool.Properties{
			"session_id": sessionProp,
			"product_id": {Type: "string"},
			"quantity":   {Type: "integer", Default: 1},
		}, "session_id", "product_id"),
		tool.Function(FuncGetCart, "Show the current cart contents and total.", tool.Properties{
			"session_id": sessionProp,
		}, "session_id"),
		tool.Function(FuncRemoveFromCart, "Remove a product from the cart.", tool.Properties{
			"session_id": sessionProp,
			"product_id": {Type: "string"},
		}, "session_id", "product_id"),
		tool.Function(FuncSaveCustomerData, "Save the customer's contact and delivery data. Fields may be saved one at a time.", tool.Properties{
			"session_id": sessionProp,
			"name":       {Type: "string"},
			"phone":      {Type: "string"},
			"email":      {Type: "string"},
			"address":    {Type: "string"},
		}, "session_id"),
		tool.Function(FuncShowProduct, "Show a product on screen when the customer asks about it without ordering it.", tool.Properties{
			"session_id": sessionProp,
			"product_id": {Type: "string"},
		}, "session_id", "product_id"),
		tool.Function(FuncReadyForCheckout, "Signal that the customer is ready to pay.", tool.Properties{
			"session_id": sessionProp,
		}, "session_id"),
	}
}

const instructions = `You are the voice assistant of Burger House. Be friendly but brief, two or three sentences at most.

1. Greet the customer once and mention burgers, sides and drinks.
2. When the customer asks about a product without ordering it, call show_product. When they order it, call add_to_cart and mention its price.
3. When the customer is done ordering, say you will ask for delivery details and call ready_for_checkout right away.
4. Ask for the full name, phone number, email and delivery address one at a time and save each answer with save_customer_data.
5. After the last detail, tell the customer to enter their card on screen.

Rules:
- Session ID: %s. Always include it in function calls.
- Do not repeat the whole order unless asked.
- Never ask for card details by voice. Any payment question leads to ready_for_checkout.`

// Instructions returns the system instructions for sessionID.
func Instructions(sessionID string) string {
	return fmt.Sprintf(instructions, sessionID)
}
