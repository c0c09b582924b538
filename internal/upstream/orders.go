package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/normalize"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func optionalMoney(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := money(*d)
	return &n
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Statuses []string
	Date     string
	Limit    int
}

// PaymentRequest is a payment recorded against an order.
type PaymentRequest struct {
	Method              string
	Amount              decimal.Decimal
	Status              string
	Reference           string
	CashPortion         *decimal.Decimal
	CardPortion         *decimal.Decimal
	AmountReceived      *decimal.Decimal
	ChangeAmount        *decimal.Decimal
	RemainingAmount     *decimal.Decimal
	FuturePaymentMethod string
}

// OrderRequest creates an order from a checked-out cart.
type OrderRequest struct {
	Items          []model.OrderItem
	CustomerName   string
	CustomerPhone  string
	CustomerEmail  string
	DeliveryMethod string
	Delivery       *model.FulfillmentDetails
	Pickup         *model.FulfillmentDetails
	TotalAmount    decimal.Decimal
	Payment        PaymentRequest
	Notes          string
	QueuedOrderID  string
}

type variationBody struct {
	ID              string      `json:"id,omitempty"`
	Type            string      `json:"type"`
	Value           string      `json:"value"`
	PriceAdjustment json.Number `json:"priceAdjustment"`
}

type imageBody struct {
	URL     string `json:"url"`
	Comment string `json:"comment,omitempty"`
}

type itemBody struct {
	ProductID          string          `json:"productId"`
	Name               string          `json:"name"`
	Quantity           int             `json:"quantity"`
	BasePrice          json.Number     `json:"basePrice"`
	CustomPrice        *json.Number    `json:"customPrice,omitempty"`
	SelectedVariations []variationBody `json:"selectedVariations"`
	TotalPrice         json.Number     `json:"totalPrice"`
	CustomImages       []imageBody     `json:"customImages,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

type fulfillmentBody struct {
	Address        string       `json:"address,omitempty"`
	Date           string       `json:"date,omitempty"`
	TimeSlot       string       `json:"timeSlot,omitempty"`
	DeliveryCharge *json.Number `json:"deliveryCharge,omitempty"`
}

type paymentBody struct {
	Method              string       `json:"method"`
	Amount              json.Number  `json:"amount"`
	Status              string       `json:"status,omitempty"`
	Reference           string       `json:"reference,omitempty"`
	CashPortion         *json.Number `json:"cashPortion,omitempty"`
	CardPortion         *json.Number `json:"cardPortion,omitempty"`
	AmountReceived      *json.Number `json:"amountReceived,omitempty"`
	ChangeAmount        *json.Number `json:"changeAmount,omitempty"`
	RemainingAmount     *json.Number `json:"remainingAmount,omitempty"`
	FuturePaymentMethod string       `json:"futurePaymentMethod,omitempty"`
}

type orderBody struct {
	Items          []itemBody       `json:"items"`
	CustomerName   string           `json:"customerName,omitempty"`
	CustomerPhone  string           `json:"customerPhone,omitempty"`
	CustomerEmail  string           `json:"customerEmail,omitempty"`
	DeliveryMethod string           `json:"deliveryMethod"`
	Delivery       *fulfillmentBody `json:"deliveryDetails,omitempty"`
	Pickup         *fulfillmentBody `json:"pickupDetails,omitempty"`
	TotalAmount    json.Number      `json:"totalAmount"`
	Payment        paymentBody      `json:"payment"`
	Notes          string           `json:"notes,omitempty"`
	QueuedOrderID  string           `json:"queuedOrderId,omitempty"`
}

type statusBody struct {
	Status              string                    `json:"status,omitempty"`
	Notes               string                    `json:"notes,omitempty"`
	TeamNotes           string                    `json:"teamNotes,omitempty"`
	PartialRefundAmount *json.Number              `json:"partialRefundAmount,omitempty"`
	ParallelProcessing  *model.ParallelProcessing `json:"parallelProcessing,omitempty"`
	DesignerID          string                    `json:"designerId,omitempty"`
	IsSentBack          *bool                     `json:"isSentBack,omitempty"`
	ReturnReason        string                    `json:"returnReason,omitempty"`
	FinalCheckNotes     string                    `json:"finalCheckNotes,omitempty"`
}

func toItemBody(it model.OrderItem) itemBody {
	b := itemBody{
		ProductID:          it.ProductID,
		Name:               it.Name,
		Quantity:           it.Quantity,
		BasePrice:          money(it.BasePrice),
		SelectedVariations: make([]variationBody, 0, len(it.SelectedVariations)),
		TotalPrice:         money(it.TotalPrice),
		Notes:              it.Notes,
	}
	if it.AllowCustomPrice {
		b.CustomPrice = optionalMoney(it.CustomPrice)
	}
	for _, v := range it.SelectedVariations {
		b.SelectedVariations = append(b.SelectedVariations, variationBody{
			ID:              v.ID,
			Type:            v.Type,
			Value:           v.Value,
			PriceAdjustment: money(v.PriceAdjustment),
		})
	}
	for _, img := range it.CustomImages {
		if img.URL != "" {
			b.CustomImages = append(b.CustomImages, imageBody{URL: img.URL, Comment: img.Comment})
		}
	}
	return b
}

func toPaymentBody(p PaymentRequest) paymentBody {
	return paymentBody{
		Method:              p.Method,
		Amount:              money(p.Amount),
		Status:              p.Status,
		Reference:           p.Reference,
		CashPortion:         optionalMoney(p.CashPortion),
		CardPortion:         optionalMoney(p.CardPortion),
		AmountReceived:      optionalMoney(p.AmountReceived),
		ChangeAmount:        optionalMoney(p.ChangeAmount),
		RemainingAmount:     optionalMoney(p.RemainingAmount),
		FuturePaymentMethod: p.FuturePaymentMethod,
	}
}

func toFulfillmentBody(f *model.FulfillmentDetails, withCharge bool) *fulfillmentBody {
	if f == nil {
		return nil
	}
	b := &fulfillmentBody{Address: f.Address, Date: f.Date, TimeSlot: f.TimeSlot}
	if withCharge {
		b.DeliveryCharge = optionalMoney(&f.DeliveryCharge)
	}
	return b
}

// Orders lists orders.
func (c *Conn) Orders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		q.Set("status", strings.Join(f.Statuses, ","))
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/orders", query: q})
	if err != nil {
		return nil, err
	}
	return normalize.Orders(data), nil
}

// Order fetches one order.
func (c *Conn) Order(ctx context.Context, id string) (model.Order, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, path: "/orders/" + url.PathEscape(id)})
	if err != nil {
		return model.Order{}, err
	}
	return normalize.Order(orderObject(data)), nil
}

// UpdateStatus submits a status update and returns the fields the backend
// reports as changed.
func (c *Conn) UpdateStatus(ctx context.Context, id string, u orderflow.StatusUpdate) (model.OrderPatch, error) {
	body := statusBody{
		Status:              u.Status,
		Notes:               u.Notes,
		TeamNotes:           u.TeamNotes,
		PartialRefundAmount: optionalMoney(u.PartialRefundAmount),
		ParallelProcessing:  u.ParallelProcessing,
		DesignerID:          u.DesignerID,
		IsSentBack:          u.IsSentBack,
		ReturnReason:        u.ReturnReason,
		FinalCheckNotes:     u.FinalCheckNotes,
	}
	data, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/orders/" + url.PathEscape(id) + "/status",
		body:   body,
	})
	if err != nil {
		return model.OrderPatch{}, err
	}
	return normalize.OrderPatch(orderObject(data)), nil
}

// CreateOrder submits a checked-out cart.
func (c *Conn) CreateOrder(ctx context.Context, r OrderRequest) (model.Order, error) {
	body := orderBody{
		Items:          make([]itemBody, 0, len(r.Items)),
		CustomerName:   r.CustomerName,
		CustomerPhone:  r.CustomerPhone,
		CustomerEmail:  r.CustomerEmail,
		DeliveryMethod: r.DeliveryMethod,
		Delivery:       toFulfillmentBody(r.Delivery, true),
		Pickup:         toFulfillmentBody(r.Pickup, false),
		TotalAmount:    money(r.TotalAmount),
		Payment:        toPaymentBody(r.Payment),
		Notes:          r.Notes,
		QueuedOrderID:  r.QueuedOrderID,
	}
	for _, it := range r.Items {
		body.Items = append(body.Items, toItemBody(it))
	}
	data, err := c.do(ctx, request{method: http.MethodPost, path: "/orders", body: body})
	if err != nil {
		return model.Order{}, err
	}
	return normalize.Order(orderObject(data)), nil
}

// AddPayment records a further payment on an order, e.g. "Pay Remaining".
func (c *Conn) AddPayment(ctx context.Context, orderID string, p PaymentRequest) (model.Order, error) {
	data, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/orders/" + url.PathEscape(orderID) + "/payments",
		body:   toPaymentBody(p),
	})
	if err != nil {
		return model.Order{}, err
	}
	return normalize.Order(orderObject(data)), nil
}

// orderObject accepts both {order: {...}} and a bare order.
func orderObject(data any) map[string]any {
	m := normalize.Map(data)
	if inner, ok := m["order"].(map[string]any); ok {
		return inner
	}
	return m
}
