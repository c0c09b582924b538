package orderflow

import (
	"errors"
	"testing"
	"time"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/shopspring/decimal"
)

var (
	designer  = model.Staff{ID: "u-design", Name: "Dina", Role: enum.UserRoleDesigner}
	designer2 = model.Staff{ID: "u-design-2", Name: "Rafi", Role: enum.UserRoleDesigner}
	cashier   = model.Staff{ID: "u-cash", Name: "Sari", Role: enum.UserRoleCashier}
	superUser = model.Staff{ID: "u-root", Name: "Owner", Role: enum.UserRoleSuperAdmin}
)

func parallelOrder(design, kitchen string) model.Order {
	return model.Order{
		ID:                 "o-1",
		Status:             enum.OrderStatusParallelProcessing,
		RequiresDesign:     true,
		RequiresKitchen:    true,
		ParallelProcessing: &model.ParallelProcessing{DesignStatus: design, KitchenStatus: kitchen},
	}
}

func strPtr(s string) *string { return &s }

// =====================
// Plan
// =====================

func TestPlan_ReleaseRoutesByRequirements(t *testing.T) {
	tests := []struct {
		name     string
		design   bool
		kitchen  bool
		status   string
		parallel bool
	}{
		{"design only", true, false, enum.OrderStatusDesignQueue, false},
		{"kitchen only", false, true, enum.OrderStatusKitchenQueue, false},
		{"both", true, true, enum.OrderStatusParallelProcessing, true},
		{"neither", false, false, enum.OrderStatusFinalCheckQueue, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := model.Order{Status: enum.OrderStatusPending, RequiresDesign: tt.design, RequiresKitchen: tt.kitchen}
			upd, err := Plan(o, enum.DisplayPOS, ActionRelease, cashier, Input{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if upd.Status != tt.status {
				t.Errorf("status: got %q, want %q", upd.Status, tt.status)
			}
			if tt.parallel {
				if upd.ParallelProcessing == nil ||
					upd.ParallelProcessing.DesignStatus != enum.OrderStatusDesignQueue ||
					upd.ParallelProcessing.KitchenStatus != enum.OrderStatusKitchenQueue {
					t.Errorf("parallel lanes: got %+v", upd.ParallelProcessing)
				}
			}
		})
	}
}

func TestPlan_StartDesignRecordsDesigner(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusDesignQueue, RequiresDesign: true}
	upd, err := Plan(o, enum.DisplayDesign, ActionStartDesign, designer, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != enum.OrderStatusDesignProcessing || upd.DesignerID != designer.ID {
		t.Fatalf("got %+v", upd)
	}
}

func TestPlan_ParallelLaneNeverSetsFinalCheck(t *testing.T) {
	o := parallelOrder(enum.OrderStatusDesignProcessing, enum.OrderStatusKitchenReady)

	upd, err := Plan(o, enum.DisplayDesign, ActionCompleteDesign, designer, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != "" {
		t.Fatalf("parallel lane update must not set top-level status, got %q", upd.Status)
	}
	if upd.ParallelProcessing == nil || upd.ParallelProcessing.DesignStatus != enum.OrderStatusDesignReady {
		t.Fatalf("design lane: got %+v", upd.ParallelProcessing)
	}
	if upd.ParallelProcessing.KitchenStatus != "" {
		t.Errorf("kitchen lane must be left to the server, got %q", upd.ParallelProcessing.KitchenStatus)
	}

	// Both lanes ready: the station still may not advance the order.
	ready := parallelOrder(enum.OrderStatusDesignReady, enum.OrderStatusKitchenReady)
	for _, display := range []string{enum.DisplayDesign, enum.DisplayKitchen} {
		if _, err := Plan(ready, display, ActionSendToFinalCheck, designer, Input{}); !errors.Is(err, ErrParallelAdvance) {
			t.Errorf("%s: expected ErrParallelAdvance, got %v", display, err)
		}
	}
}

func TestPlan_KitchenLaneOfParallelOrder(t *testing.T) {
	o := parallelOrder(enum.OrderStatusDesignQueue, "")

	upd, err := Plan(o, enum.DisplayKitchen, ActionStartKitchen, cashier, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != "" || upd.ParallelProcessing.KitchenStatus != enum.OrderStatusKitchenProcessing {
		t.Fatalf("got %+v", upd)
	}
}

func TestPlan_SingleLaneSendToFinalCheck(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusKitchenReady, RequiresKitchen: true}
	upd, err := Plan(o, enum.DisplayKitchen, ActionSendToFinalCheck, cashier, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != enum.OrderStatusFinalCheckQueue {
		t.Fatalf("status: got %q", upd.Status)
	}
}

func TestPlan_IllegalTransition(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusDesignQueue}
	_, err := Plan(o, enum.DisplayDesign, ActionCompleteDesign, designer, Input{})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	_, err = Plan(o, "TV", ActionStartDesign, designer, Input{})
	if !errors.Is(err, ErrUnknownDisplay) {
		t.Fatalf("expected ErrUnknownDisplay, got %v", err)
	}

	_, err = Plan(o, enum.DisplayDesign, Action("DANCE"), designer, Input{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestPlan_ClaimedDesignOwnedByDesigner(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusDesignProcessing, DesignerID: designer.ID}

	if _, err := Plan(o, enum.DisplayDesign, ActionCompleteDesign, designer2, Input{}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := Plan(o, enum.DisplayDesign, ActionCompleteDesign, designer, Input{}); err != nil {
		t.Fatalf("owner should complete: %v", err)
	}
}

func TestPlan_SendBack(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusFinalCheckProcessing, RequiresDesign: true, DesignerID: designer.ID}

	if _, err := Plan(o, enum.DisplayFinalCheck, ActionSendBack, cashier, Input{}); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	upd, err := Plan(o, enum.DisplayFinalCheck, ActionSendBack, cashier, Input{ReturnReason: "Wrong name spelling"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != enum.OrderStatusDesignQueue {
		t.Errorf("status: got %q", upd.Status)
	}
	if upd.IsSentBack == nil || !*upd.IsSentBack || upd.ReturnReason != "Wrong name spelling" {
		t.Errorf("sent back flags: got %+v", upd)
	}
	if upd.DesignerID != "" {
		t.Errorf("send back must keep the original owner, got designerId %q", upd.DesignerID)
	}

	kitchenOnly := model.Order{Status: enum.OrderStatusFinalCheckQueue, RequiresKitchen: true}
	upd, err = Plan(kitchenOnly, enum.DisplayFinalCheck, ActionSendBack, cashier, Input{ReturnReason: "Cracked"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != enum.OrderStatusKitchenQueue {
		t.Errorf("kitchen-only send back: got %q", upd.Status)
	}
}

func TestPlan_CancelRequiresSuperAdmin(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusKitchenProcessing}

	if _, err := Plan(o, enum.DisplayPOS, ActionCancel, cashier, Input{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	upd, err := Plan(o, enum.DisplayPOS, ActionCancel, superUser, Input{Notes: "customer called"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upd.Status != enum.OrderStatusCancelled || upd.Notes != "customer called" {
		t.Fatalf("got %+v", upd)
	}

	done := model.Order{Status: enum.OrderStatusCompleted}
	if _, err := Plan(done, enum.DisplayPOS, ActionCancel, superUser, Input{}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("terminal order: expected ErrIllegalTransition, got %v", err)
	}
}

func TestPlan_PartialRefundBounds(t *testing.T) {
	o := model.Order{
		Status:      enum.OrderStatusCancelled,
		TotalAmount: decimal.NewFromInt(100),
		Payments:    []model.OrderPayment{{Method: enum.PaymentMethodCash, Amount: decimal.NewFromInt(60)}},
	}
	amount := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	tests := []struct {
		name    string
		amount  *decimal.Decimal
		wantErr bool
	}{
		{"missing", nil, true},
		{"zero", amount("0"), true},
		{"negative", amount("-5"), true},
		{"above paid", amount("60.01"), true},
		{"equal paid", amount("60"), false},
		{"within", amount("12.50"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd, err := Plan(o, enum.DisplayPOS, ActionPartialRefund, superUser, Input{RefundAmount: tt.amount})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRefundAmount) {
					t.Fatalf("expected ErrInvalidRefundAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if upd.Status != enum.OrderStatusPartiallyRefunded || !upd.PartialRefundAmount.Equal(*tt.amount) {
				t.Fatalf("got %+v", upd)
			}
		})
	}

	if _, err := Plan(o, enum.DisplayPOS, ActionPartialRefund, cashier, Input{RefundAmount: amount("10")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cashier refund: expected ErrForbidden, got %v", err)
	}
}

func TestActions_ByDisplay(t *testing.T) {
	o := model.Order{Status: enum.OrderStatusFinalCheckProcessing}
	got := Actions(o, enum.DisplayFinalCheck, cashier)

	want := map[Action]string{
		ActionCompleteFinalCheck: enum.OrderStatusFinalCheckComplete,
		ActionSendBack:           enum.OrderStatusDesignQueue,
	}
	if len(got) != len(want) {
		t.Fatalf("actions: got %+v", got)
	}
	for _, opt := range got {
		if want[opt.Action] != opt.Target {
			t.Errorf("option %s: target %q, want %q", opt.Action, opt.Target, want[opt.Action])
		}
	}

	if opts := Actions(o, enum.DisplayPOS, cashier); len(opts) != 0 {
		t.Errorf("cashier sees no POS actions on an in-progress order, got %+v", opts)
	}
	if opts := Actions(o, enum.DisplayPOS, superUser); len(opts) != 1 || opts[0].Action != ActionCancel {
		t.Errorf("super admin should be offered cancel, got %+v", opts)
	}
}

// =====================
// Apply
// =====================

func TestApply_OnlyServerReportedFields(t *testing.T) {
	o := parallelOrder(enum.OrderStatusDesignReady, enum.OrderStatusKitchenProcessing)
	o.Notes = "keep me"

	Apply(&o, model.OrderPatch{ParallelProcessing: &model.ParallelProcessing{KitchenStatus: enum.OrderStatusKitchenReady}})
	if o.Status != enum.OrderStatusParallelProcessing {
		t.Fatalf("status must not be inferred locally, got %q", o.Status)
	}
	if o.ParallelProcessing.DesignStatus != enum.OrderStatusDesignReady || o.ParallelProcessing.KitchenStatus != enum.OrderStatusKitchenReady {
		t.Fatalf("lanes: got %+v", o.ParallelProcessing)
	}

	Apply(&o, model.OrderPatch{Status: strPtr(enum.OrderStatusFinalCheckQueue)})
	if o.Status != enum.OrderStatusFinalCheckQueue {
		t.Fatalf("server-reported status not applied, got %q", o.Status)
	}
	if o.Notes != "keep me" {
		t.Errorf("unreported notes overwritten: %q", o.Notes)
	}
}

// =====================
// Visibility and ordering
// =====================

func TestVisible_DesignOwnership(t *testing.T) {
	claimed := model.Order{Status: enum.OrderStatusDesignProcessing, DesignerID: designer.ID}
	if !Visible(claimed, enum.DisplayDesign, designer) {
		t.Error("owner must see claimed design")
	}
	if Visible(claimed, enum.DisplayDesign, designer2) {
		t.Error("other designers must not see claimed design")
	}

	unclaimed := model.Order{Status: enum.OrderStatusDesignProcessing}
	if !Visible(unclaimed, enum.DisplayDesign, designer2) {
		t.Error("design without owner is visible to everyone")
	}

	sentBack := model.Order{Status: enum.OrderStatusDesignQueue, DesignerID: designer.ID, IsSentBack: true}
	if Visible(sentBack, enum.DisplayDesign, designer2) {
		t.Error("sent back design shows only to its original designer")
	}

	if Visible(claimed, enum.DisplayKitchen, designer) {
		t.Error("design order must not show on kitchen display")
	}
	if !Visible(claimed, enum.DisplayPOS, cashier) {
		t.Error("POS sees every order")
	}
}

func TestVisible_ParallelOnBothLanes(t *testing.T) {
	o := parallelOrder(enum.OrderStatusDesignProcessing, enum.OrderStatusKitchenQueue)
	if !Visible(o, enum.DisplayKitchen, cashier) {
		t.Error("parallel order should show on kitchen display")
	}
	if !Visible(o, enum.DisplayDesign, designer) {
		t.Error("parallel order should show on design display")
	}
	if Visible(o, enum.DisplayFinalCheck, cashier) {
		t.Error("parallel order in progress must not show on final check")
	}
}

func TestSlotStart(t *testing.T) {
	tests := []struct {
		slot         string
		hour, minute int
		ok           bool
	}{
		{"10:00 AM - 11:00 AM", 10, 0, true},
		{"2:30 PM - 3:30 PM", 14, 30, true},
		{"12:00 PM - 1:00 PM", 12, 0, true},
		{"12:15 am-1:00 am", 0, 15, true},
		{"4PM - 5PM", 16, 0, true},
		{"17:45", 17, 45, true},
		{"", 0, 0, false},
		{"whenever", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, ok := SlotStart(tt.slot)
		if ok != tt.ok || h != tt.hour || m != tt.minute {
			t.Errorf("SlotStart(%q): got %d:%02d %v, want %d:%02d %v", tt.slot, h, m, ok, tt.hour, tt.minute, tt.ok)
		}
	}
}

func TestSortBySchedule(t *testing.T) {
	prev := Location
	Location = time.UTC
	defer func() { Location = prev }()

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: "late", DeliveryMethod: enum.DeliveryMethodPickup, Pickup: model.FulfillmentDetails{Date: "2024-05-02", TimeSlot: "2:00 PM - 3:00 PM"}},
		{ID: "undated", CreatedAt: created},
		{ID: "early", DeliveryMethod: enum.DeliveryMethodDelivery, Delivery: model.FulfillmentDetails{Date: "2024-05-02T00:00:00Z", TimeSlot: "10:00 AM - 11:00 AM"}},
		{ID: "same-day", DeliveryMethod: enum.DeliveryMethodPickup, Pickup: model.FulfillmentDetails{Date: "2024-05-01", TimeSlot: "9:00 AM - 10:00 AM"}},
	}
	SortBySchedule(orders)

	want := []string{"undated", "same-day", "early", "late"}
	for i, id := range want {
		if orders[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, orders[i].ID, id, ids(orders))
		}
	}
}

func TestSortBySchedule_NoDateGoesLast(t *testing.T) {
	prev := Location
	Location = time.UTC
	defer func() { Location = prev }()

	orders := []model.Order{
		{ID: "legacy-1"},
		{ID: "scheduled", Pickup: model.FulfillmentDetails{Date: "2024-05-02", TimeSlot: "10:00 AM - 11:00 AM"}},
		{ID: "legacy-2", Pickup: model.FulfillmentDetails{Date: "next week"}},
		{ID: "created", CreatedAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	SortBySchedule(orders)

	want := []string{"scheduled", "created", "legacy-1", "legacy-2"}
	for i, id := range want {
		if orders[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, orders[i].ID, id, ids(orders))
		}
	}
}

func TestLane_OnlyParallelStatusSplits(t *testing.T) {
	// Flags and a stale sub-status do not make a pending order parallel.
	o := model.Order{
		Status:             enum.OrderStatusPending,
		RequiresDesign:     true,
		RequiresKitchen:    true,
		ParallelProcessing: &model.ParallelProcessing{DesignStatus: enum.OrderStatusDesignProcessing},
	}
	if o.IsParallel() {
		t.Fatal("pending order reported as parallel")
	}
	if got := Lane(o, enum.DisplayDesign); got != enum.OrderStatusPending {
		t.Errorf("design lane: got %s, want PENDING", got)
	}

	o.Status = enum.OrderStatusParallelProcessing
	if !o.IsParallel() {
		t.Fatal("parallel order not reported as parallel")
	}
	if got := Lane(o, enum.DisplayDesign); got != enum.OrderStatusDesignProcessing {
		t.Errorf("design lane: got %s", got)
	}
	if got := Lane(o, enum.DisplayKitchen); got != enum.OrderStatusKitchenQueue {
		t.Errorf("kitchen lane: got %s, want KITCHEN_QUEUE", got)
	}
}

func TestBoard_FiltersAndSorts(t *testing.T) {
	orders := []model.Order{
		{ID: "k", Status: enum.OrderStatusKitchenQueue, CreatedAt: time.Unix(200, 0)},
		{ID: "d2", Status: enum.OrderStatusDesignQueue, CreatedAt: time.Unix(300, 0)},
		{ID: "d1", Status: enum.OrderStatusDesignQueue, CreatedAt: time.Unix(100, 0)},
	}
	got := Board(orders, enum.DisplayDesign, designer)
	if len(got) != 2 || got[0].ID != "d1" || got[1].ID != "d2" {
		t.Fatalf("board: got %v", ids(got))
	}
}

func ids(orders []model.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
