package service

import (
	"strings"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/kiwari-pos/station/internal/upstream"
	"github.com/shopspring/decimal"
)

// PaymentInput is what the cashier entered for a payment.
type PaymentInput struct {
	Method string
	// Amount paid now. Nil pays everything due.
	Amount              *decimal.Decimal
	AmountReceived      *decimal.Decimal
	CashPortion         *decimal.Decimal
	Reference           string
	FuturePaymentMethod string
}

var paymentMethods = map[string]bool{
	enum.PaymentMethodCash:         true,
	enum.PaymentMethodCard:         true,
	enum.PaymentMethodBankTransfer: true,
	enum.PaymentMethodPBL:          true,
	enum.PaymentMethodTalabat:      true,
	enum.PaymentMethodCOD:          true,
	enum.PaymentMethodPayLater:     true,
	enum.PaymentMethodSplit:        true,
}

// paymentFromCheckout reads the payment part of a checkout form.
func paymentFromCheckout(d model.CheckoutDetails) PaymentInput {
	return PaymentInput{
		Method:              d.PaymentMethod,
		Amount:              d.PartialAmount,
		AmountReceived:      d.AmountReceived,
		CashPortion:         d.CashPortion,
		Reference:           d.Reference,
		FuturePaymentMethod: d.FuturePaymentMethod,
	}
}

// buildPayment validates a payment against the amount due.
func buildPayment(due decimal.Decimal, in PaymentInput) (upstream.PaymentRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if !paymentMethods[method] {
		return upstream.PaymentRequest{}, ErrInvalidPayment
	}
	req := upstream.PaymentRequest{
		Method:              method,
		Reference:           strings.TrimSpace(in.Reference),
		FuturePaymentMethod: in.FuturePaymentMethod,
	}

	// Deferred methods record the full amount as outstanding.
	if method == enum.PaymentMethodPayLater || method == enum.PaymentMethodCOD {
		remaining := due
		req.Amount = decimal.Zero
		req.Status = enum.PaymentStatusPending
		req.RemainingAmount = &remaining
		return req, nil
	}

	amount := due
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		return upstream.PaymentRequest{}, ErrInvalidAmount
	}
	if amount.Sub(due).GreaterThanOrEqual(pricing.Epsilon) {
		return upstream.PaymentRequest{}, ErrOverpayment
	}
	req.Amount = amount

	switch method {
	case enum.PaymentMethodCash:
		received := amount
		if in.AmountReceived != nil {
			received = *in.AmountReceived
		}
		if amount.Sub(received).GreaterThanOrEqual(pricing.Epsilon) {
			return upstream.PaymentRequest{}, ErrInsufficientCash
		}
		change := pricing.ChangeDue(amount, received)
		req.AmountReceived = &received
		req.ChangeAmount = &change

	case enum.PaymentMethodSplit:
		if in.CashPortion == nil || in.CashPortion.IsNegative() || in.CashPortion.GreaterThan(amount) {
			return upstream.PaymentRequest{}, ErrInvalidCashPortion
		}
		cash, card, err := pricing.SplitPortions(model.OrderPayment{Amount: amount, CashPortion: *in.CashPortion})
		if err != nil {
			return upstream.PaymentRequest{}, err
		}
		req.CashPortion = &cash
		req.CardPortion = &card
		if in.AmountReceived != nil {
			if cash.Sub(*in.AmountReceived).GreaterThanOrEqual(pricing.Epsilon) {
				return upstream.PaymentRequest{}, ErrInsufficientCash
			}
			received := *in.AmountReceived
			change := pricing.ChangeDue(cash, received)
			req.AmountReceived = &received
			req.ChangeAmount = &change
		}
	}

	remaining := due.Sub(amount)
	if remaining.GreaterThanOrEqual(pricing.Epsilon) {
		req.Status = enum.PaymentStatusPartiallyPaid
		req.RemainingAmount = &remaining
	} else {
		req.Status = enum.PaymentStatusPaid
	}
	return req, nil
}
