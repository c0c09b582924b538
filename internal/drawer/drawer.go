// Package drawer computes till figures for a cash drawer session.
//
// The figures are advisory: a discrepancy is reported to staff and sent along
// with the close request, but never blocks it.
package drawer

import (
	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/shopspring/decimal"
)

// Classification labels a discrepancy.
type Classification string

const (
	Balanced Classification = "BALANCED"
	Over     Classification = "OVER"
	Short    Classification = "SHORT"
)

// cashTotalKeys are the payment total buckets that put cash in the till.
var cashTotalKeys = []string{
	enum.PaymentMethodCash,
	enum.PaymentTotalSplitCash,
	enum.PaymentTotalPartialCash,
}

// CashSales is the cash taken in sales during the session. Payment totals
// reported by the backend win; without them, cash SALE operations are summed.
func CashSales(s model.DrawerSession) decimal.Decimal {
	if len(s.PaymentTotals) > 0 {
		total := decimal.Zero
		for _, k := range cashTotalKeys {
			total = total.Add(s.PaymentTotals[k])
		}
		return total
	}
	total := decimal.Zero
	for _, op := range s.Operations {
		if op.Type != enum.DrawerOpSale {
			continue
		}
		if op.Method == "" || op.Method == enum.PaymentMethodCash {
			total = total.Add(op.Amount)
		}
	}
	return total
}

// PayIns sums ADD_CASH operations.
func PayIns(s model.DrawerSession) decimal.Decimal {
	return sumOps(s, enum.DrawerOpAddCash)
}

// PayOuts sums TAKE_CASH operations.
func PayOuts(s model.DrawerSession) decimal.Decimal {
	return sumOps(s, enum.DrawerOpTakeCash)
}

func sumOps(s model.DrawerSession, typ string) decimal.Decimal {
	total := decimal.Zero
	for _, op := range s.Operations {
		if op.Type == typ {
			total = total.Add(op.Amount)
		}
	}
	return total
}

// OpeningAmount is the session's opening float, falling back to an
// OPENING_BALANCE operation when the session field is empty.
func OpeningAmount(s model.DrawerSession) decimal.Decimal {
	if !s.OpeningAmount.IsZero() {
		return s.OpeningAmount
	}
	return sumOps(s, enum.DrawerOpOpeningBalance)
}

// ExpectedClosing = opening + cash sales + pay-ins - pay-outs.
func ExpectedClosing(s model.DrawerSession) decimal.Decimal {
	return OpeningAmount(s).Add(CashSales(s)).Add(PayIns(s)).Sub(PayOuts(s))
}

// Discrepancy is closing - expected. Positive means over, negative short.
func Discrepancy(closing, expected decimal.Decimal) decimal.Decimal {
	return closing.Sub(expected)
}

// Classify labels a discrepancy, treating anything under a cent as balanced.
func Classify(discrepancy decimal.Decimal) Classification {
	switch {
	case discrepancy.Abs().LessThan(pricing.Epsilon):
		return Balanced
	case discrepancy.IsPositive():
		return Over
	default:
		return Short
	}
}

// Summary is the till report for a session.
type Summary struct {
	SessionID       string                     `json:"sessionId"`
	Status          string                     `json:"status"`
	Opening         decimal.Decimal            `json:"openingAmount"`
	CashSales       decimal.Decimal            `json:"cashSales"`
	PayIns          decimal.Decimal            `json:"payIns"`
	PayOuts         decimal.Decimal            `json:"payOuts"`
	Expected        decimal.Decimal            `json:"expectedAmount"`
	Closing         *decimal.Decimal           `json:"closingAmount,omitempty"`
	Discrepancy     *decimal.Decimal           `json:"discrepancy,omitempty"`
	Classification  Classification             `json:"classification,omitempty"`
	PaymentTotals   map[string]decimal.Decimal `json:"paymentTotals"`
	OperationsCount int                        `json:"operationsCount"`
}

// Summarize builds the till report. closing overrides the session's own
// closing amount when a count is being entered; nil leaves it as recorded.
func Summarize(s model.DrawerSession, closing *decimal.Decimal) Summary {
	sum := Summary{
		SessionID:       s.ID,
		Status:          s.Status,
		Opening:         OpeningAmount(s),
		CashSales:       CashSales(s),
		PayIns:          PayIns(s),
		PayOuts:         PayOuts(s),
		Expected:        ExpectedClosing(s),
		PaymentTotals:   s.PaymentTotals,
		OperationsCount: len(s.Operations),
	}
	if closing == nil {
		closing = s.ClosingAmount
	}
	if closing != nil {
		c := *closing
		d := Discrepancy(c, sum.Expected)
		sum.Closing = &c
		sum.Discrepancy = &d
		sum.Classification = Classify(d)
	}
	return sum
}
