// Package pricing computes line totals, cart totals and payment reconciliation.
//
// TotalPrice on a line always includes quantity. Nothing downstream of
// LineTotal multiplies by quantity again.
package pricing

import (
	"errors"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance for money comparisons.
var Epsilon = decimal.NewFromFloat(0.01)

// ErrSplitMismatch is returned when a split payment's portions do not add up to its amount.
var ErrSplitMismatch = errors.New("split payment portions do not add up to amount")

// LineTotal returns (base + Σ adjustments) × quantity. base is customPrice when
// one is supplied and the product allows custom pricing, basePrice otherwise.
// Negative adjustments are allowed and the result is not clamped.
func LineTotal(basePrice decimal.Decimal, quantity int, variations []model.Variation, customPrice *decimal.Decimal, allowCustom bool) decimal.Decimal {
	unit := basePrice
	if customPrice != nil && allowCustom {
		unit = *customPrice
	}
	for _, v := range variations {
		unit = unit.Add(v.PriceAdjustment)
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}

// ItemTotal is LineTotal applied to an order line.
func ItemTotal(item model.OrderItem) decimal.Decimal {
	return LineTotal(item.BasePrice, item.Quantity, item.SelectedVariations, item.CustomPrice, item.AllowCustomPrice)
}

// Recompute refreshes item.TotalPrice. Call it after every change to quantity,
// variations or custom price.
func Recompute(item *model.OrderItem) {
	item.TotalPrice = ItemTotal(*item)
}

// CartTotal sums line totals.
func CartTotal(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

// ItemsTotal sums order line totals.
func ItemsTotal(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

// TotalPaid sums all recorded payments.
func TotalPaid(o model.Order) decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// IsFullyPaid reports whether payments match the total within Epsilon.
func IsFullyPaid(o model.Order) bool {
	return TotalPaid(o).Sub(o.TotalAmount).Abs().LessThan(Epsilon)
}

// HasPartialPayment reports an order that was paid in part and still needs a
// "Pay Remaining" follow-up.
func HasPartialPayment(o model.Order) bool {
	for _, p := range o.Payments {
		if p.Status == enum.PaymentStatusPartiallyPaid {
			return true
		}
	}
	paid := TotalPaid(o)
	return paid.IsPositive() && paid.LessThan(o.TotalAmount)
}

// RemainingAmount is what is still owed; never negative.
func RemainingAmount(o model.Order) decimal.Decimal {
	remaining := o.TotalAmount.Sub(TotalPaid(o))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// SplitPortions returns the cash and card halves of a split payment. A missing
// card portion is derived as amount - cash.
func SplitPortions(p model.OrderPayment) (cash, card decimal.Decimal, err error) {
	cash = p.CashPortion
	if !p.HasCardPortion {
		return cash, p.Amount.Sub(cash), nil
	}
	card = p.CardPortion
	if cash.Add(card).Sub(p.Amount).Abs().GreaterThanOrEqual(Epsilon) {
		return cash, card, ErrSplitMismatch
	}
	return cash, card, nil
}

// ChangeDue is the change to hand back for a cash tender; never negative.
func ChangeDue(due, received decimal.Decimal) decimal.Decimal {
	change := received.Sub(due)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// PaymentSummary is the reconciliation view of an order's payments.
type PaymentSummary struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TotalPaid       decimal.Decimal `json:"totalPaid"`
	Remaining       decimal.Decimal `json:"remainingAmount"`
	FullyPaid       bool            `json:"fullyPaid"`
	PartiallyPaid   bool            `json:"partiallyPaid"`
	NeedsPayment    bool            `json:"needsPayment"`
	FutureMethod    string          `json:"futurePaymentMethod,omitempty"`
	SplitMismatches int             `json:"splitMismatches"`
}

// Summarize reconciles an order's payments against its total.
func Summarize(o model.Order) PaymentSummary {
	s := PaymentSummary{
		TotalAmount:   o.TotalAmount,
		TotalPaid:     TotalPaid(o),
		Remaining:     RemainingAmount(o),
		FullyPaid:     IsFullyPaid(o),
		PartiallyPaid: HasPartialPayment(o),
	}
	s.NeedsPayment = !s.FullyPaid && s.Remaining.GreaterThanOrEqual(Epsilon)
	for _, p := range o.Payments {
		if p.FuturePaymentMethod != "" {
			s.FutureMethod = p.FuturePaymentMethod
		}
		if p.Method == enum.PaymentMethodSplit {
			if _, _, err := SplitPortions(p); err != nil {
				s.SplitMismatches++
			}
		}
	}
	return s
}

// TotalCheck compares an order's stated total with its lines plus delivery charge.
type TotalCheck struct {
	Expected   decimal.Decimal `json:"expected"`
	Stated     decimal.Decimal `json:"stated"`
	Difference decimal.Decimal `json:"difference"`
	Consistent bool            `json:"consistent"`
}

// CheckOrderTotal reports whether totalAmount == Σ items + delivery charge.
// Inconsistent data is reported, never rejected.
func CheckOrderTotal(o model.Order) TotalCheck {
	expected := ItemsTotal(o.Items)
	if o.DeliveryMethod == enum.DeliveryMethodDelivery {
		expected = expected.Add(o.Delivery.DeliveryCharge)
	}
	diff := o.TotalAmount.Sub(expected)
	return TotalCheck{
		Expected:   expected,
		Stated:     o.TotalAmount,
		Difference: diff,
		Consistent: diff.Abs().LessThan(Epsilon),
	}
}
