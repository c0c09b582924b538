// Package model holds the station's view of backend entities after normalization.
// Money is always decimal.Decimal; identifiers issued by the backend are opaque strings.
package model

import (
	"time"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/shopspring/decimal"
)

// Variation is a selected product option, e.g. {Type: "Size", Value: "Large", PriceAdjustment: 5}.
type Variation struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Value           string          `json:"value"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// CustomImage is a design asset attached to a line. PreviewID is set while the
// image only exists as a station-held preview blob.
type CustomImage struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	PreviewID string `json:"previewId,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID          string           `json:"productId"`
	Name               string           `json:"name"`
	Quantity           int              `json:"quantity"`
	BasePrice          decimal.Decimal  `json:"basePrice"`
	CustomPrice        *decimal.Decimal `json:"customPrice,omitempty"`
	AllowCustomPrice   bool             `json:"allowCustomPrice"`
	SelectedVariations []Variation      `json:"selectedVariations"`
	TotalPrice         decimal.Decimal  `json:"totalPrice"`
	CustomImages       []CustomImage    `json:"customImages,omitempty"`
	Notes              string           `json:"notes,omitempty"`
}

// CartItem is a working line before checkout.
type CartItem struct {
	ID string `json:"id"`
	OrderItem
}

// OrderPayment records how (part of) an order was paid.
type OrderPayment struct {
	Method              string          `json:"method"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	Reference           string          `json:"reference,omitempty"`
	CashPortion         decimal.Decimal `json:"cashPortion"`
	CardPortion         decimal.Decimal `json:"cardPortion"`
	HasCardPortion      bool            `json:"-"`
	RemainingAmount     decimal.Decimal `json:"remainingAmount"`
	FuturePaymentMethod string          `json:"futurePaymentMethod,omitempty"`
}

// ParallelProcessing tracks both lanes of an order that needs design and kitchen work.
type ParallelProcessing struct {
	DesignStatus  string `json:"designStatus,omitempty"`
	KitchenStatus string `json:"kitchenStatus,omitempty"`
}

// FulfillmentDetails is the delivery or pickup bundle of an order.
type FulfillmentDetails struct {
	Address        string          `json:"address,omitempty"`
	Date           string          `json:"date,omitempty"`
	TimeSlot       string          `json:"timeSlot,omitempty"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
}

// Order is the central entity. Status is only changed through the backend.
type Order struct {
	ID                  string              `json:"id"`
	OrderNumber         string              `json:"orderNumber"`
	Status              string              `json:"status"`
	CustomerName        string              `json:"customerName,omitempty"`
	CustomerPhone       string              `json:"customerPhone,omitempty"`
	CustomerEmail       string              `json:"customerEmail,omitempty"`
	DeliveryMethod      string              `json:"deliveryMethod"`
	Delivery            FulfillmentDetails  `json:"delivery"`
	Pickup              FulfillmentDetails  `json:"pickup"`
	TotalAmount         decimal.Decimal     `json:"totalAmount"`
	PaidAmount          decimal.Decimal     `json:"paidAmount"`
	ChangeAmount        decimal.Decimal     `json:"changeAmount"`
	PartialRefundAmount *decimal.Decimal    `json:"partialRefundAmount,omitempty"`
	Items               []OrderItem         `json:"items"`
	Payments            []OrderPayment      `json:"payments"`
	RequiresDesign      bool                `json:"requiresDesign"`
	RequiresKitchen     bool                `json:"requiresKitchen"`
	ParallelProcessing  *ParallelProcessing `json:"parallelProcessing,omitempty"`
	DesignerID          string              `json:"designerId,omitempty"`
	IsSentBack          bool                `json:"isSentBack"`
	FinalCheckNotes     string              `json:"finalCheckNotes,omitempty"`
	ReturnReason        string              `json:"returnReason,omitempty"`
	Notes               string              `json:"notes,omitempty"`
	TeamNotes           string              `json:"teamNotes,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// IsParallel reports whether the order is running its design and kitchen
// lanes concurrently. Each lane then tracks its own sub-status.
func (o Order) IsParallel() bool {
	return o.Status == enum.OrderStatusParallelProcessing
}

// OrderPatch is the subset of an order returned by a status update.
// Nil fields were not reported by the server.
type OrderPatch struct {
	Status              *string
	ParallelProcessing  *ParallelProcessing
	DesignerID          *string
	IsSentBack          *bool
	FinalCheckNotes     *string
	ReturnReason        *string
	Notes               *string
	TeamNotes           *string
	PartialRefundAmount *decimal.Decimal
	UpdatedAt           *time.Time
}

// DrawerOperation is one movement recorded against a till session.
type DrawerOperation struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DrawerSession is a till shift.
type DrawerSession struct {
	ID            string                     `json:"id"`
	Status        string                     `json:"status"`
	OpeningAmount decimal.Decimal            `json:"openingAmount"`
	ClosingAmount *decimal.Decimal           `json:"closingAmount,omitempty"`
	Operations    []DrawerOperation          `json:"operations"`
	PaymentTotals map[string]decimal.Decimal `json:"paymentTotals"`
	OpenedBy      string                     `json:"openedBy,omitempty"`
	OpenedAt      time.Time                  `json:"openedAt"`
	ClosedAt      *time.Time                 `json:"closedAt,omitempty"`
	Notes         string                     `json:"notes,omitempty"`
}

// CheckoutDetails is the in-progress checkout form.
type CheckoutDetails struct {
	CustomerName        string             `json:"customerName,omitempty"`
	CustomerPhone       string             `json:"customerPhone,omitempty"`
	CustomerEmail       string             `json:"customerEmail,omitempty"`
	DeliveryMethod      string             `json:"deliveryMethod,omitempty"`
	Delivery            FulfillmentDetails `json:"delivery"`
	Pickup              FulfillmentDetails `json:"pickup"`
	PaymentMethod       string             `json:"paymentMethod,omitempty"`
	AmountReceived      *decimal.Decimal   `json:"amountReceived,omitempty"`
	CashPortion         *decimal.Decimal   `json:"cashPortion,omitempty"`
	PartialAmount       *decimal.Decimal   `json:"partialAmount,omitempty"`
	FuturePaymentMethod string             `json:"futurePaymentMethod,omitempty"`
	Reference           string             `json:"reference,omitempty"`
	Notes               string             `json:"notes,omitempty"`
	QueuedOrderID       string             `json:"queuedOrderId,omitempty"`
}

// QueuedOrder is a cart plus checkout details saved on the backend for later.
type QueuedOrder struct {
	ID        string          `json:"id"`
	Label     string          `json:"label,omitempty"`
	Items     []CartItem      `json:"items"`
	Checkout  CheckoutDetails `json:"checkout"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// VariationOption is a selectable variation value offered by a product.
type VariationOption struct {
	Type            string          `json:"type"`
	Value           string          `json:"value"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// Product is a catalog entry.
type Product struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	CategoryID       string            `json:"categoryId,omitempty"`
	BasePrice        decimal.Decimal   `json:"basePrice"`
	AllowCustomPrice bool              `json:"allowCustomPrice"`
	RequiresDesign   bool              `json:"requiresDesign"`
	RequiresKitchen  bool              `json:"requiresKitchen"`
	Variations       []VariationOption `json:"variations"`
	ImageURL         string            `json:"imageUrl,omitempty"`
	IsActive         bool              `json:"isActive"`
}

// Category groups products.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Staff is the authenticated staff member acting on a screen.
type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
