package normalize

import (
	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
)

// CartItem rebuilds a cart line from the local cache or a queued order.
// Lines without a product reference are rejected (ok == false); every other
// missing field gets a default and the total is recomputed.
func CartItem(m map[string]any) (model.CartItem, bool) {
	item := OrderItem(m)
	if item.ProductID == "" {
		return model.CartItem{}, false
	}
	pricing.Recompute(&item)

	ci := model.CartItem{ID: String(first(m, "id", "cartItemId")), OrderItem: item}
	if ci.ID == "" {
		ci.ID = uuid.NewString()
	}
	if ci.SelectedVariations == nil {
		ci.SelectedVariations = []model.Variation{}
	}
	return ci, true
}

// CartItems normalizes a stored cart, dropping lines that cannot be rebuilt.
func CartItems(v any) (items []model.CartItem, dropped int) {
	items = make([]model.CartItem, 0)
	for _, raw := range Slice(v) {
		m, ok := raw.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		ci, ok := CartItem(m)
		if !ok {
			dropped++
			continue
		}
		items = append(items, ci)
	}
	return items, dropped
}

// CheckoutDetails normalizes a stored or queued checkout form.
func CheckoutDetails(m map[string]any) model.CheckoutDetails {
	return model.CheckoutDetails{
		CustomerName:        String(m["customerName"]),
		CustomerPhone:       String(m["customerPhone"]),
		CustomerEmail:       String(m["customerEmail"]),
		DeliveryMethod:      String(m["deliveryMethod"]),
		Delivery:            fulfillment(Map(first(m, "delivery", "deliveryDetails"))),
		Pickup:              fulfillment(Map(first(m, "pickup", "pickupDetails"))),
		PaymentMethod:       String(m["paymentMethod"]),
		AmountReceived:      OptionalDecimal(m["amountReceived"]),
		CashPortion:         OptionalDecimal(m["cashPortion"]),
		PartialAmount:       OptionalDecimal(m["partialAmount"]),
		FuturePaymentMethod: String(m["futurePaymentMethod"]),
		Reference:           String(m["reference"]),
		Notes:               String(m["notes"]),
		QueuedOrderID:       String(m["queuedOrderId"]),
	}
}

// QueuedOrder normalizes a queued order. Its items go through the same
// validation as the local cart.
func QueuedOrder(m map[string]any) model.QueuedOrder {
	items, _ := CartItems(first(m, "items", "cartItems"))
	return model.QueuedOrder{
		ID:        ID(m),
		Label:     String(first(m, "label", "name")),
		Items:     items,
		Checkout:  CheckoutDetails(Map(first(m, "checkout", "checkoutDetails"))),
		CreatedBy: String(m["createdBy"]),
		CreatedAt: Time(m["createdAt"]),
	}
}

// QueuedOrders normalizes a list of queued orders.
func QueuedOrders(v any) []model.QueuedOrder {
	list := Slice(v)
	if list == nil {
		list = Slice(Map(v)["queuedOrders"])
	}
	out := make([]model.QueuedOrder, 0, len(list))
	for _, raw := range list {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, QueuedOrder(m))
		}
	}
	return out
}
