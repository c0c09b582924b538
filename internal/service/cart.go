package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/shopspring/decimal"
)

// CartBackend defines the backend calls needed by the cart service.
// Satisfied by *upstream.Conn; narrow interface for testability.
type CartBackend interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)
	Order(ctx context.Context, id string) (model.Order, error)
	CreateOrder(ctx context.Context, r upstream.OrderRequest) (model.Order, error)
	UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error)
	QueueOrder(ctx context.Context, label string, items []model.CartItem, checkout model.CheckoutDetails) (model.QueuedOrder, error)
	QueuedOrders(ctx context.Context) ([]model.QueuedOrder, error)
	QueuedOrder(ctx context.Context, id string) (model.QueuedOrder, error)
	DeleteQueuedOrder(ctx context.Context, id string) error
}

// CartView is the cart together with its checkout form.
type CartView struct {
	Items        []model.CartItem      `json:"items"`
	Total        decimal.Decimal       `json:"total"`
	Checkout     model.CheckoutDetails `json:"checkout"`
	CheckoutOpen bool                  `json:"checkoutOpen"`
}

// VariationChoice selects one of a product's variation options.
type VariationChoice struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AddItemRequest adds a product to the cart.
type AddItemRequest struct {
	ProductID   string
	Quantity    int
	Variations  []VariationChoice
	CustomPrice *decimal.Decimal
	Notes       string
}

// UpdateItemRequest changes a cart line. Nil fields are left as they are.
type UpdateItemRequest struct {
	Quantity    *int
	Variations  *[]VariationChoice
	CustomPrice *decimal.Decimal
	Notes       *string
}

// ImageUpload is an image attached to a cart line.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	Comment     string
}

// CartService manages the cart, checkout and queued orders of a session.
type CartService struct {
	connect func(sid string) CartBackend
	local   *cache.Local
	trigger Notifier

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// NewCartService creates a new CartService.
func NewCartService(connect func(sid string) CartBackend, local *cache.Local, trigger Notifier) *CartService {
	return &CartService{connect: connect, local: local, trigger: trigger, locks: make(map[string]*sessionLock)}
}

// lock serializes changes to one session's cart. Every read-modify-write of
// the cart or checkout form holds it; the returned func releases it.
func (s *CartService) lock(sid string) func() {
	s.mu.Lock()
	l, ok := s.locks[sid]
	if !ok {
		l = &sessionLock{}
		s.locks[sid] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sid)
		}
		s.mu.Unlock()
	}
}

// Cart returns the session's cart and checkout form.
func (s *CartService) Cart(ctx context.Context, sid string) (*CartView, error) {
	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return s.view(ctx, sid, items)
}

func (s *CartService) view(ctx context.Context, sid string, items []model.CartItem) (*CartView, error) {
	details, err := s.local.Checkout(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}
	open, err := s.local.CheckoutOpen(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load checkout flag: %w", err)
	}
	return &CartView{Items: items, Total: pricing.CartTotal(items), Checkout: details, CheckoutOpen: open}, nil
}

func (s *CartService) save(ctx context.Context, sid string, items []model.CartItem) (*CartView, error) {
	if err := s.local.SaveCart(ctx, sid, items); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.view(ctx, sid, items)
}

func (s *CartService) product(ctx context.Context, sid, id string) (model.Product, error) {
	products, err := s.connect(sid).ProductsByIDs(ctx, []string{id})
	if err != nil {
		return model.Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Product{}, ErrProductNotFound
}

// resolveVariations matches choices against the product's offered options.
func resolveVariations(p model.Product, choices []VariationChoice) ([]model.Variation, error) {
	out := make([]model.Variation, 0, len(choices))
	for _, c := range choices {
		found := false
		for _, opt := range p.Variations {
			if strings.EqualFold(opt.Type, c.Type) && strings.EqualFold(opt.Value, c.Value) {
				out = append(out, model.Variation{
					ID:              uuid.NewString(),
					Type:            opt.Type,
					Value:           opt.Value,
					PriceAdjustment: opt.PriceAdjustment,
				})
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s %s", ErrUnknownVariation, c.Type, c.Value)
		}
	}
	return out, nil
}

// AddItem adds a product line priced from the current catalog.
func (s *CartService) AddItem(ctx context.Context, sid string, req AddItemRequest) (*CartView, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.product(ctx, sid, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductInactive
	}
	variations, err := resolveVariations(p, req.Variations)
	if err != nil {
		return nil, err
	}

	item := model.CartItem{
		ID: uuid.NewString(),
		OrderItem: model.OrderItem{
			ProductID:          p.ID,
			Name:               p.Name,
			Quantity:           req.Quantity,
			BasePrice:          p.BasePrice,
			AllowCustomPrice:   p.AllowCustomPrice,
			SelectedVariations: variations,
			Notes:              strings.TrimSpace(req.Notes),
		},
	}
	if p.AllowCustomPrice && req.CustomPrice != nil {
		price := *req.CustomPrice
		item.CustomPrice = &price
	}
	pricing.Recompute(&item.OrderItem)

	defer s.lock(sid)()
	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return s.save(ctx, sid, append(items, item))
}

func findItem(items []model.CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// UpdateItem changes a line and recomputes its total.
func (s *CartService) UpdateItem(ctx context.Context, sid, itemID string, req UpdateItemRequest) (*CartView, error) {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	i := findItem(items, itemID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	item := &items[i]

	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		item.Quantity = *req.Quantity
	}
	if req.Variations != nil {
		p, err := s.product(ctx, sid, item.ProductID)
		if err != nil {
			return nil, err
		}
		variations, err := resolveVariations(p, *req.Variations)
		if err != nil {
			return nil, err
		}
		item.SelectedVariations = variations
	}
	if req.CustomPrice != nil && item.AllowCustomPrice {
		price := *req.CustomPrice
		item.CustomPrice = &price
	}
	if req.Notes != nil {
		item.Notes = strings.TrimSpace(*req.Notes)
	}
	pricing.Recompute(&item.OrderItem)

	return s.save(ctx, sid, items)
}

// RemoveItem drops a line and releases its held images.
func (s *CartService) RemoveItem(ctx context.Context, sid, itemID string) (*CartView, error) {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	i := findItem(items, itemID)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	removed := items[i]
	items = append(items[:i], items[i+1:]...)

	view, err := s.save(ctx, sid, items)
	if err != nil {
		return nil, err
	}
	s.release(ctx, removed)
	return view, nil
}

// ClearCart empties the cart and checkout form and releases held images.
func (s *CartService) ClearCart(ctx context.Context, sid string) error {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if err := s.local.Clear(ctx, sid); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.release(ctx, items...)
	return nil
}

func (s *CartService) release(ctx context.Context, items ...model.CartItem) {
	if err := s.local.ReleasePreviews(ctx, cache.PreviewIDs(items...)...); err != nil {
		log.Printf("WARN: release previews: %v", err)
	}
}

// AttachImage holds an image as a preview on a cart line until checkout.
func (s *CartService) AttachImage(ctx context.Context, sid, itemID string, img ImageUpload) (*CartView, error) {
	if !strings.HasPrefix(img.ContentType, "image/") || len(img.Data) == 0 {
		return nil, ErrInvalidImage
	}
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	i := findItem(items, itemID)
	if i < 0 {
		return nil, ErrItemNotFound
	}

	previewID, err := s.local.PutPreview(ctx, img.ContentType, img.Filename, img.Data)
	if err != nil {
		return nil, fmt.Errorf("store preview: %w", err)
	}
	items[i].CustomImages = append(items[i].CustomImages, model.CustomImage{
		ID:        uuid.NewString(),
		PreviewID: previewID,
		Comment:   strings.TrimSpace(img.Comment),
	})

	view, err := s.save(ctx, sid, items)
	if err != nil {
		if rerr := s.local.ReleasePreviews(ctx, previewID); rerr != nil {
			log.Printf("WARN: release preview %s: %v", previewID, rerr)
		}
		return nil, err
	}
	return view, nil
}

// RemoveImage detaches an image from a cart line and releases its preview.
func (s *CartService) RemoveImage(ctx context.Context, sid, itemID, imageID string) (*CartView, error) {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	i := findItem(items, itemID)
	if i < 0 {
		return nil, ErrItemNotFound
	}

	images := items[i].CustomImages
	for j, img := range images {
		if img.ID != imageID {
			continue
		}
		items[i].CustomImages = append(images[:j:j], images[j+1:]...)
		view, err := s.save(ctx, sid, items)
		if err != nil {
			return nil, err
		}
		if err := s.local.ReleasePreviews(ctx, img.PreviewID); err != nil {
			log.Printf("WARN: release preview %s: %v", img.PreviewID, err)
		}
		return view, nil
	}
	return nil, ErrImageNotFound
}

// Preview returns a held image.
func (s *CartService) Preview(ctx context.Context, id string) (cache.Preview, error) {
	return s.local.Preview(ctx, id)
}

// SaveCheckout stores the checkout form and whether it is open.
func (s *CartService) SaveCheckout(ctx context.Context, sid string, d model.CheckoutDetails, open bool) (*CartView, error) {
	defer s.lock(sid)()

	current, err := s.local.Checkout(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}
	// The queued order being resumed is tracked by the station, not the form.
	d.QueuedOrderID = current.QueuedOrderID
	if err := s.local.SaveCheckout(ctx, sid, d); err != nil {
		return nil, fmt.Errorf("save checkout: %w", err)
	}
	if err := s.local.SetCheckoutOpen(ctx, sid, open); err != nil {
		return nil, fmt.Errorf("save checkout flag: %w", err)
	}
	return s.Cart(ctx, sid)
}

// uploadPreviews replaces held previews with uploaded image URLs. The cart in
// the cache is not modified.
func (s *CartService) uploadPreviews(ctx context.Context, conn CartBackend, items []model.CartItem) ([]model.CartItem, error) {
	out := make([]model.CartItem, len(items))
	for i, it := range items {
		out[i] = it
		if len(it.CustomImages) == 0 {
			continue
		}
		images := make([]model.CustomImage, 0, len(it.CustomImages))
		for _, img := range it.CustomImages {
			if img.URL != "" {
				images = append(images, img)
				continue
			}
			if img.PreviewID == "" {
				continue
			}
			p, err := s.local.Preview(ctx, img.PreviewID)
			if errors.Is(err, cache.ErrNotFound) {
				log.Printf("WARN: preview %s expired, dropping image from %s", img.PreviewID, it.Name)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load preview: %w", err)
			}
			url, err := conn.UploadImage(ctx, p.Filename, p.ContentType, p.Data)
			if err != nil {
				return nil, err
			}
			img.URL = url
			images = append(images, img)
		}
		out[i].CustomImages = images
	}
	return out, nil
}

func fulfillment(d model.CheckoutDetails) (method string, delivery, pickup *model.FulfillmentDetails, err error) {
	method = strings.ToUpper(strings.TrimSpace(d.DeliveryMethod))
	switch method {
	case "", enum.DeliveryMethodPickup:
		p := d.Pickup
		return enum.DeliveryMethodPickup, nil, &p, nil
	case enum.DeliveryMethodDelivery:
		if strings.TrimSpace(d.Delivery.Address) == "" {
			return "", nil, nil, fmt.Errorf("%w: delivery address is required", ErrInvalidDelivery)
		}
		dl := d.Delivery
		return method, &dl, nil, nil
	default:
		return "", nil, nil, ErrInvalidDelivery
	}
}

// Checkout turns the cart into an order. The cart, checkout form and held
// images are cleared only after the backend accepted the order, and a resumed
// queued order is deleted then too.
func (s *CartService) Checkout(ctx context.Context, sid string) (*model.Order, error) {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	details, err := s.local.Checkout(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}

	method, delivery, pickup, err := fulfillment(details)
	if err != nil {
		return nil, err
	}
	total := pricing.CartTotal(items)
	if delivery != nil {
		total = total.Add(delivery.DeliveryCharge)
	}
	payment, err := buildPayment(total, paymentFromCheckout(details))
	if err != nil {
		return nil, err
	}

	conn := s.connect(sid)
	uploaded, err := s.uploadPreviews(ctx, conn, items)
	if err != nil {
		return nil, err
	}
	lines := make([]model.OrderItem, 0, len(uploaded))
	for _, it := range uploaded {
		lines = append(lines, it.OrderItem)
	}

	order, err := conn.CreateOrder(ctx, upstream.OrderRequest{
		Items:          lines,
		CustomerName:   strings.TrimSpace(details.CustomerName),
		CustomerPhone:  strings.TrimSpace(details.CustomerPhone),
		CustomerEmail:  strings.TrimSpace(details.CustomerEmail),
		DeliveryMethod: method,
		Delivery:       delivery,
		Pickup:         pickup,
		TotalAmount:    total,
		Payment:        payment,
		Notes:          details.Notes,
		QueuedOrderID:  details.QueuedOrderID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.local.Clear(ctx, sid); err != nil {
		log.Printf("ERROR: clear cart after checkout for session %s: %v", sid, err)
	}
	s.release(ctx, items...)
	if details.QueuedOrderID != "" {
		if err := conn.DeleteQueuedOrder(ctx, details.QueuedOrderID); err != nil {
			log.Printf("WARN: delete queued order %s after checkout: %v", details.QueuedOrderID, err)
		}
	}
	s.trigger.Notify()
	return &order, nil
}

// QueueCart saves the cart and checkout form on the backend and empties the
// local cart.
func (s *CartService) QueueCart(ctx context.Context, sid, label string) (*model.QueuedOrder, error) {
	defer s.lock(sid)()

	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	details, err := s.local.Checkout(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}

	conn := s.connect(sid)
	uploaded, err := s.uploadPreviews(ctx, conn, items)
	if err != nil {
		return nil, err
	}
	queued, err := conn.QueueOrder(ctx, strings.TrimSpace(label), uploaded, details)
	if err != nil {
		return nil, err
	}

	if err := s.local.Clear(ctx, sid); err != nil {
		log.Printf("ERROR: clear cart after queueing for session %s: %v", sid, err)
	}
	s.release(ctx, items...)
	return &queued, nil
}

// QueuedOrders lists saved carts.
func (s *CartService) QueuedOrders(ctx context.Context, sid string) ([]model.QueuedOrder, error) {
	return s.connect(sid).QueuedOrders(ctx)
}

// ResumeQueued loads a saved cart into the session, replacing the current
// cart, and opens checkout. The queued order is deleted after checkout.
func (s *CartService) ResumeQueued(ctx context.Context, sid, id string) (*CartView, error) {
	q, err := s.connect(sid).QueuedOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	defer s.lock(sid)()
	current, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	items := make([]model.CartItem, 0, len(q.Items))
	for _, it := range q.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		pricing.Recompute(&it.OrderItem)
		items = append(items, it)
	}
	details := q.Checkout
	details.QueuedOrderID = q.ID

	if err := s.local.SaveCart(ctx, sid, items); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if err := s.local.SaveCheckout(ctx, sid, details); err != nil {
		return nil, fmt.Errorf("save checkout: %w", err)
	}
	if err := s.local.SetCheckoutOpen(ctx, sid, true); err != nil {
		return nil, fmt.Errorf("save checkout flag: %w", err)
	}
	s.release(ctx, current...)
	return s.view(ctx, sid, items)
}

// DeleteQueued discards a saved cart.
func (s *CartService) DeleteQueued(ctx context.Context, sid, id string) error {
	return s.connect(sid).DeleteQueuedOrder(ctx, id)
}

// Reorder appends the lines of an existing order to the cart.
func (s *CartService) Reorder(ctx context.Context, sid, orderID string) (*CartView, error) {
	o, err := s.connect(sid).Order(ctx, orderID)
	if err != nil {
		return nil, err
	}

	defer s.lock(sid)()
	items, err := s.local.Cart(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	for _, line := range o.Items {
		if line.Quantity <= 0 {
			continue
		}
		it := model.CartItem{ID: uuid.NewString(), OrderItem: line}
		it.CustomImages = nil
		for _, img := range line.CustomImages {
			if img.URL != "" {
				img.PreviewID = ""
				it.CustomImages = append(it.CustomImages, img)
			}
		}
		pricing.Recompute(&it.OrderItem)
		items = append(items, it)
	}
	return s.save(ctx, sid, items)
}
