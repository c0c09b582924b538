package normalize

import (
	"strings"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/shopspring/decimal"
)

// DrawerSession normalizes a till session.
func DrawerSession(m map[string]any) model.DrawerSession {
	s := model.DrawerSession{
		ID:            ID(m),
		Status:        strings.ToUpper(String(m["status"])),
		OpeningAmount: Decimal(m["openingAmount"]),
		ClosingAmount: OptionalDecimal(m["closingAmount"]),
		OpenedBy:      String(first(m, "openedBy", "userId")),
		OpenedAt:      Time(first(m, "openedAt", "createdAt")),
		Notes:         String(m["notes"]),
		PaymentTotals: make(map[string]decimal.Decimal),
	}
	if t := Time(m["closedAt"]); !t.IsZero() {
		s.ClosedAt = &t
	}

	s.Operations = DrawerOperations(m["operations"])
	for k, v := range Map(m["paymentTotals"]) {
		s.PaymentTotals[strings.ToUpper(k)] = Decimal(v)
	}
	return s
}

// DrawerSessions normalizes a session history list.
func DrawerSessions(v any) []model.DrawerSession {
	list := Slice(v)
	if list == nil {
		list = Slice(Map(v)["sessions"])
	}
	out := make([]model.DrawerSession, 0, len(list))
	for _, raw := range list {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, DrawerSession(m))
		}
	}
	return out
}

// DrawerOperations normalizes drawer operations or transactions.
func DrawerOperations(v any) []model.DrawerOperation {
	list := Slice(v)
	if list == nil {
		list = Slice(first(Map(v), "operations", "transactions", "logs"))
	}
	out := make([]model.DrawerOperation, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.DrawerOperation{
			ID:        ID(m),
			Type:      strings.ToUpper(String(first(m, "type", "operationType"))),
			Amount:    Decimal(m["amount"]),
			Method:    strings.ToUpper(String(first(m, "method", "paymentMethod"))),
			Notes:     String(first(m, "notes", "reason")),
			CreatedBy: String(first(m, "createdBy", "userId")),
			CreatedAt: Time(m["createdAt"]),
		})
	}
	return out
}
