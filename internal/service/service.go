// Package service orchestrates station workflows over the backend client and
// the local cache. The backend remains the system of record: services submit
// intents and keep only what the backend confirmed.
package service

import (
	"errors"

	"github.com/kiwari-pos/station/internal/ws"
)

// Errors returned by the services.
var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrNoSession          = errors.New("no active station session")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrImageNotFound      = errors.New("image not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrProductInactive    = errors.New("product is not available")
	ErrUnknownVariation   = errors.New("variation not offered by product")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidImage       = errors.New("attachment must be an image")
	ErrInvalidDelivery    = errors.New("invalid delivery method")
	ErrInvalidPayment     = errors.New("invalid payment method")
	ErrInvalidAmount      = errors.New("amount must be > 0")
	ErrOverpayment        = errors.New("amount exceeds amount due")
	ErrInsufficientCash   = errors.New("amount received is less than amount due")
	ErrInvalidCashPortion = errors.New("cash portion must be between 0 and the amount")
	ErrAlreadyPaid        = errors.New("order is already fully paid")
	ErrDrawerOpen         = errors.New("drawer session already open")
	ErrDrawerNotOpen      = errors.New("no open drawer session")
)

// Broadcaster pushes events to connected screens. Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(event ws.Event)
	BroadcastToDisplay(display string, event ws.Event)
}

// Notifier requests an order board refresh. Satisfied by *refresh.Trigger.
type Notifier interface {
	Notify()
}
