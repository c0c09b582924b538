package normalize

import (
	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/shopspring/decimal"
)

// Variation normalizes one selected variation. Legacy records use "name" for the
// type and "price" for the adjustment; bare scalars carry only a value.
func Variation(v any) model.Variation {
	m, ok := v.(map[string]any)
	if !ok {
		return model.Variation{
			ID:              uuid.NewString(),
			Value:           String(v),
			PriceAdjustment: decimal.Zero,
		}
	}

	out := model.Variation{
		ID:              ID(m),
		Type:            String(first(m, "type", "name")),
		Value:           String(first(m, "value", "label")),
		PriceAdjustment: Decimal(first(m, "priceAdjustment", "price")),
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	return out
}

// Variations normalizes a list of variations. A single object is treated as a
// list of one; nil yields an empty, non-nil slice.
func Variations(v any) []model.Variation {
	list := Slice(v)
	if list == nil {
		if m, ok := v.(map[string]any); ok {
			list = []any{m}
		}
	}
	out := make([]model.Variation, 0, len(list))
	for _, raw := range list {
		if raw == nil {
			continue
		}
		out = append(out, Variation(raw))
	}
	return out
}

func customImages(v any) []model.CustomImage {
	var out []model.CustomImage
	for _, raw := range Slice(v) {
		m, ok := raw.(map[string]any)
		if !ok {
			if s := String(raw); s != "" {
				out = append(out, model.CustomImage{ID: uuid.NewString(), URL: s})
			}
			continue
		}
		img := model.CustomImage{
			ID:        ID(m),
			URL:       String(first(m, "url", "imageUrl")),
			PreviewID: String(m["previewId"]),
			Comment:   String(m["comment"]),
		}
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		out = append(out, img)
	}
	return out
}

// OrderItem normalizes one order line. The product reference may be a bare id or
// an embedded product object.
func OrderItem(m map[string]any) model.OrderItem {
	product := Map(m["product"])
	productID := String(first(m, "productId"))
	if productID == "" {
		if s, ok := m["product"].(string); ok {
			productID = s
		} else {
			productID = ID(product)
		}
	}

	item := model.OrderItem{
		ProductID:          productID,
		Name:               String(first(m, "name", "productName")),
		Quantity:           Int(m["quantity"]),
		BasePrice:          Decimal(first(m, "basePrice", "unitPrice", "price")),
		CustomPrice:        OptionalDecimal(m["customPrice"]),
		AllowCustomPrice:   Bool(first(m, "allowCustomPrice")) || Bool(product["allowCustomPrice"]),
		SelectedVariations: Variations(first(m, "selectedVariations", "variations")),
		CustomImages:       customImages(m["customImages"]),
		Notes:              String(m["notes"]),
	}
	if item.Name == "" {
		item.Name = String(product["name"])
	}
	if item.BasePrice.IsZero() {
		item.BasePrice = Decimal(first(product, "basePrice", "price"))
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	if total, ok := m["totalPrice"]; ok && total != nil {
		item.TotalPrice = Decimal(total)
	} else {
		pricing.Recompute(&item)
	}
	return item
}

// Payment normalizes a payment record. For split payments the cash portion is
// probed on the record, then in metadata.cashPortion, then metadata.cashAmount.
func Payment(m map[string]any) model.OrderPayment {
	meta := Map(m["metadata"])
	p := model.OrderPayment{
		Method:              String(first(m, "method", "paymentMethod")),
		Amount:              Decimal(m["amount"]),
		Status:              String(m["status"]),
		Reference:           String(first(m, "reference", "referenceNumber")),
		CashPortion:         Decimal(first(m, "cashPortion")),
		RemainingAmount:     Decimal(first(m, "remainingAmount")),
		FuturePaymentMethod: String(first(m, "futurePaymentMethod")),
	}
	if first(m, "cashPortion") == nil {
		p.CashPortion = Decimal(first(meta, "cashPortion", "cashAmount"))
	}
	if card := first(m, "cardPortion"); card != nil {
		p.CardPortion = Decimal(card)
		p.HasCardPortion = true
	} else if card := first(meta, "cardPortion", "cardAmount"); card != nil {
		p.CardPortion = Decimal(card)
		p.HasCardPortion = true
	}
	if p.Method == enum.PaymentMethodSplit && !p.HasCardPortion {
		p.CardPortion = p.Amount.Sub(p.CashPortion)
	}
	if p.FuturePaymentMethod == "" {
		p.FuturePaymentMethod = String(meta["futurePaymentMethod"])
	}
	return p
}

func fulfillment(m map[string]any) model.FulfillmentDetails {
	return model.FulfillmentDetails{
		Address:        String(first(m, "address", "deliveryAddress")),
		Date:           String(first(m, "date", "deliveryDate", "pickupDate")),
		TimeSlot:       String(first(m, "timeSlot", "deliveryTimeSlot", "pickupTimeSlot")),
		DeliveryCharge: Decimal(first(m, "deliveryCharge", "charge")),
	}
}

func parallel(v any) *model.ParallelProcessing {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &model.ParallelProcessing{
		DesignStatus:  String(m["designStatus"]),
		KitchenStatus: String(m["kitchenStatus"]),
	}
}

// Order normalizes an order document.
func Order(m map[string]any) model.Order {
	customer := Map(m["customer"])
	o := model.Order{
		ID:                  ID(m),
		OrderNumber:         String(m["orderNumber"]),
		Status:              String(m["status"]),
		CustomerName:        String(first(m, "customerName")),
		CustomerPhone:       String(first(m, "customerPhone")),
		CustomerEmail:       String(first(m, "customerEmail")),
		DeliveryMethod:      String(m["deliveryMethod"]),
		Delivery:            fulfillment(Map(first(m, "deliveryDetails", "delivery"))),
		Pickup:              fulfillment(Map(first(m, "pickupDetails", "pickup"))),
		TotalAmount:         Decimal(m["totalAmount"]),
		PaidAmount:          Decimal(m["paidAmount"]),
		ChangeAmount:        Decimal(m["changeAmount"]),
		PartialRefundAmount: OptionalDecimal(m["partialRefundAmount"]),
		RequiresDesign:      Bool(m["requiresDesign"]),
		RequiresKitchen:     Bool(m["requiresKitchen"]),
		ParallelProcessing:  parallel(m["parallelProcessing"]),
		DesignerID:          String(first(m, "designerId", "assignedTo")),
		IsSentBack:          Bool(m["isSentBack"]),
		FinalCheckNotes:     String(m["finalCheckNotes"]),
		ReturnReason:        String(m["returnReason"]),
		Notes:               String(m["notes"]),
		TeamNotes:           String(m["teamNotes"]),
		CreatedAt:           Time(m["createdAt"]),
		UpdatedAt:           Time(m["updatedAt"]),
	}
	if o.CustomerName == "" {
		o.CustomerName = String(customer["name"])
	}
	if o.CustomerPhone == "" {
		o.CustomerPhone = String(customer["phone"])
	}
	if o.CustomerEmail == "" {
		o.CustomerEmail = String(customer["email"])
	}

	o.Items = make([]model.OrderItem, 0)
	for _, raw := range Slice(m["items"]) {
		im, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		o.Items = append(o.Items, OrderItem(im))
	}

	o.Payments = make([]model.OrderPayment, 0)
	for _, raw := range Slice(m["payments"]) {
		pm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		o.Payments = append(o.Payments, Payment(pm))
	}
	return o
}

// Orders normalizes a list of orders, skipping entries that are not objects.
func Orders(v any) []model.Order {
	list := Slice(v)
	if list == nil {
		list = Slice(Map(v)["orders"])
	}
	out := make([]model.Order, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Order(m))
	}
	return out
}

// OrderPatch reads the fields a status update reported. Missing keys stay nil so
// they never overwrite what the station already knows.
func OrderPatch(m map[string]any) model.OrderPatch {
	var p model.OrderPatch
	if v, ok := m["status"]; ok && v != nil {
		s := String(v)
		p.Status = &s
	}
	if v, ok := m["parallelProcessing"]; ok {
		p.ParallelProcessing = parallel(v)
	}
	if v, ok := m["designerId"]; ok {
		s := String(v)
		p.DesignerID = &s
	}
	if v, ok := m["isSentBack"]; ok {
		b := Bool(v)
		p.IsSentBack = &b
	}
	for key, dst := range map[string]**string{
		"finalCheckNotes": &p.FinalCheckNotes,
		"returnReason":    &p.ReturnReason,
		"notes":           &p.Notes,
		"teamNotes":       &p.TeamNotes,
	} {
		if v, ok := m[key]; ok {
			s := String(v)
			*dst = &s
		}
	}
	if v, ok := m["partialRefundAmount"]; ok {
		p.PartialRefundAmount = OptionalDecimal(v)
	}
	if v, ok := m["updatedAt"]; ok {
		if t := Time(v); !t.IsZero() {
			p.UpdatedAt = &t
		}
	}
	return p
}
