// Package orderflow models the production status machine of an order as seen
// from the station's screens. It never advances an order on its own: Plan
// produces the update to submit, and Apply merges what the backend returned.
package orderflow

import (
	"errors"
	"fmt"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/shopspring/decimal"
)

// Action is a staff intent on an order.
type Action string

const (
	ActionRelease            Action = "RELEASE"
	ActionStartDesign        Action = "START_DESIGN"
	ActionCompleteDesign     Action = "COMPLETE_DESIGN"
	ActionStartKitchen       Action = "START_KITCHEN"
	ActionCompleteKitchen    Action = "COMPLETE_KITCHEN"
	ActionSendToFinalCheck   Action = "SEND_TO_FINAL_CHECK"
	ActionStartFinalCheck    Action = "START_FINAL_CHECK"
	ActionCompleteFinalCheck Action = "COMPLETE_FINAL_CHECK"
	ActionSendBack           Action = "SEND_BACK"
	ActionComplete           Action = "COMPLETE"
	ActionCancel             Action = "CANCEL"
	ActionRefund             Action = "REFUND"
	ActionPartialRefund      Action = "PARTIAL_REFUND"
)

// Errors returned by Plan.
var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrUnknownDisplay      = errors.New("unknown display")
	ErrIllegalTransition   = errors.New("action not allowed in current status")
	ErrParallelAdvance     = errors.New("parallel orders advance to final check when both lanes are ready")
	ErrForbidden           = errors.New("action requires super admin")
	ErrNotOwner            = errors.New("order is claimed by another staff member")
	ErrReasonRequired      = errors.New("return reason is required")
	ErrInvalidRefundAmount = errors.New("partial refund amount must be > 0 and <= amount paid")
)

// displayActions lists, per screen, the actions it offers.
var displayActions = map[string][]Action{
	enum.DisplayPOS:        {ActionRelease, ActionCancel, ActionRefund, ActionPartialRefund},
	enum.DisplayDesign:     {ActionStartDesign, ActionCompleteDesign, ActionSendToFinalCheck},
	enum.DisplayKitchen:    {ActionStartKitchen, ActionCompleteKitchen, ActionSendToFinalCheck},
	enum.DisplayFinalCheck: {ActionStartFinalCheck, ActionCompleteFinalCheck, ActionSendBack, ActionComplete},
}

var terminal = map[string]bool{
	enum.OrderStatusCompleted:         true,
	enum.OrderStatusCancelled:         true,
	enum.OrderStatusRefunded:          true,
	enum.OrderStatusPartiallyRefunded: true,
}

// IsTerminal reports whether no production action applies to status.
func IsTerminal(status string) bool {
	return terminal[status]
}

// StatusUpdate is the body of a status PATCH. Empty Status means the top-level
// status is left to the backend (parallel lane updates).
type StatusUpdate struct {
	Status              string
	Notes               string
	TeamNotes           string
	PartialRefundAmount *decimal.Decimal
	ParallelProcessing  *model.ParallelProcessing
	DesignerID          string
	IsSentBack          *bool
	ReturnReason        string
	FinalCheckNotes     string
}

// Input carries the optional free-text and amounts a staff member typed.
type Input struct {
	Notes        string
	TeamNotes    string
	ReturnReason string
	RefundAmount *decimal.Decimal
}

// Option is an action offered on a screen together with the status it targets.
type Option struct {
	Action Action `json:"action"`
	Target string `json:"target"`
}

// Lane returns the order's status as the given display sees it. For a parallel
// order the design and kitchen displays read their sub-status.
func Lane(o model.Order, display string) string {
	if !o.IsParallel() {
		return o.Status
	}
	pp := model.ParallelProcessing{}
	if o.ParallelProcessing != nil {
		pp = *o.ParallelProcessing
	}
	switch display {
	case enum.DisplayDesign:
		if pp.DesignStatus == "" {
			return enum.OrderStatusDesignQueue
		}
		return pp.DesignStatus
	case enum.DisplayKitchen:
		if pp.KitchenStatus == "" {
			return enum.OrderStatusKitchenQueue
		}
		return pp.KitchenStatus
	}
	return o.Status
}

// Actions lists what staff may do with the order from display.
func Actions(o model.Order, display string, staff model.Staff) []Option {
	var opts []Option
	for _, a := range displayActions[display] {
		target, err := check(o, display, a, staff)
		if err != nil {
			continue
		}
		opts = append(opts, Option{Action: a, Target: target})
	}
	return opts
}

// Plan validates an action and builds the update to submit. It does not touch o.
func Plan(o model.Order, display string, action Action, staff model.Staff, in Input) (StatusUpdate, error) {
	if _, ok := displayActions[display]; !ok {
		return StatusUpdate{}, fmt.Errorf("%w: %s", ErrUnknownDisplay, display)
	}
	target, err := check(o, display, action, staff)
	if err != nil {
		return StatusUpdate{}, err
	}

	upd := StatusUpdate{Notes: in.Notes, TeamNotes: in.TeamNotes}
	parallelLane := o.IsParallel() &&
		(display == enum.DisplayDesign || display == enum.DisplayKitchen)

	switch {
	case parallelLane && display == enum.DisplayDesign:
		upd.ParallelProcessing = &model.ParallelProcessing{DesignStatus: target}
	case parallelLane && display == enum.DisplayKitchen:
		upd.ParallelProcessing = &model.ParallelProcessing{KitchenStatus: target}
	default:
		upd.Status = target
	}

	switch action {
	case ActionRelease:
		if target == enum.OrderStatusParallelProcessing {
			upd.ParallelProcessing = &model.ParallelProcessing{
				DesignStatus:  enum.OrderStatusDesignQueue,
				KitchenStatus: enum.OrderStatusKitchenQueue,
			}
		}
	case ActionStartDesign:
		upd.DesignerID = staff.ID
	case ActionSendBack:
		if in.ReturnReason == "" {
			return StatusUpdate{}, ErrReasonRequired
		}
		sentBack := true
		upd.IsSentBack = &sentBack
		upd.ReturnReason = in.ReturnReason
		upd.FinalCheckNotes = in.Notes
	case ActionPartialRefund:
		paid := pricing.TotalPaid(o)
		if in.RefundAmount == nil || !in.RefundAmount.IsPositive() || in.RefundAmount.GreaterThan(paid) {
			return StatusUpdate{}, ErrInvalidRefundAmount
		}
		amt := *in.RefundAmount
		upd.PartialRefundAmount = &amt
	}
	return upd, nil
}

// check returns the target status of action, or why it is not allowed.
func check(o model.Order, display string, action Action, staff model.Staff) (string, error) {
	lane := Lane(o, display)
	parallel := o.IsParallel()

	switch action {
	case ActionRelease:
		if o.Status != enum.OrderStatusPending {
			return "", illegal(action, o.Status)
		}
		return releaseTarget(o), nil

	case ActionStartDesign:
		if display != enum.DisplayDesign || lane != enum.OrderStatusDesignQueue {
			return "", illegal(action, lane)
		}
		if err := requireOwner(o, staff); err != nil {
			return "", err
		}
		return enum.OrderStatusDesignProcessing, nil

	case ActionCompleteDesign:
		if display != enum.DisplayDesign || lane != enum.OrderStatusDesignProcessing {
			return "", illegal(action, lane)
		}
		if err := requireOwner(o, staff); err != nil {
			return "", err
		}
		return enum.OrderStatusDesignReady, nil

	case ActionStartKitchen:
		if display != enum.DisplayKitchen || lane != enum.OrderStatusKitchenQueue {
			return "", illegal(action, lane)
		}
		return enum.OrderStatusKitchenProcessing, nil

	case ActionCompleteKitchen:
		if display != enum.DisplayKitchen || lane != enum.OrderStatusKitchenProcessing {
			return "", illegal(action, lane)
		}
		return enum.OrderStatusKitchenReady, nil

	case ActionSendToFinalCheck:
		if parallel {
			return "", ErrParallelAdvance
		}
		switch {
		case display == enum.DisplayDesign && lane == enum.OrderStatusDesignReady:
			if err := requireOwner(o, staff); err != nil {
				return "", err
			}
		case display == enum.DisplayKitchen && lane == enum.OrderStatusKitchenReady:
		default:
			return "", illegal(action, lane)
		}
		return enum.OrderStatusFinalCheckQueue, nil

	case ActionStartFinalCheck:
		if display != enum.DisplayFinalCheck || o.Status != enum.OrderStatusFinalCheckQueue {
			return "", illegal(action, o.Status)
		}
		return enum.OrderStatusFinalCheckProcessing, nil

	case ActionCompleteFinalCheck:
		if display != enum.DisplayFinalCheck || o.Status != enum.OrderStatusFinalCheckProcessing {
			return "", illegal(action, o.Status)
		}
		return enum.OrderStatusFinalCheckComplete, nil

	case ActionSendBack:
		if display != enum.DisplayFinalCheck ||
			(o.Status != enum.OrderStatusFinalCheckQueue && o.Status != enum.OrderStatusFinalCheckProcessing) {
			return "", illegal(action, o.Status)
		}
		if o.RequiresKitchen && !o.RequiresDesign {
			return enum.OrderStatusKitchenQueue, nil
		}
		return enum.OrderStatusDesignQueue, nil

	case ActionComplete:
		if display != enum.DisplayFinalCheck || o.Status != enum.OrderStatusFinalCheckComplete {
			return "", illegal(action, o.Status)
		}
		return enum.OrderStatusCompleted, nil

	case ActionCancel:
		if IsTerminal(o.Status) {
			return "", illegal(action, o.Status)
		}
		if staff.Role != enum.UserRoleSuperAdmin {
			return "", ErrForbidden
		}
		return enum.OrderStatusCancelled, nil

	case ActionRefund, ActionPartialRefund:
		if o.Status != enum.OrderStatusCancelled {
			return "", illegal(action, o.Status)
		}
		if staff.Role != enum.UserRoleSuperAdmin {
			return "", ErrForbidden
		}
		if action == ActionRefund {
			return enum.OrderStatusRefunded, nil
		}
		return enum.OrderStatusPartiallyRefunded, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

func releaseTarget(o model.Order) string {
	switch {
	case o.RequiresDesign && o.RequiresKitchen:
		return enum.OrderStatusParallelProcessing
	case o.RequiresDesign:
		return enum.OrderStatusDesignQueue
	case o.RequiresKitchen:
		return enum.OrderStatusKitchenQueue
	}
	return enum.OrderStatusFinalCheckQueue
}

// requireOwner rejects staff other than the one who claimed the design.
// Orders without an owner are open to everyone.
func requireOwner(o model.Order, staff model.Staff) error {
	if o.DesignerID != "" && o.DesignerID != staff.ID {
		return ErrNotOwner
	}
	return nil
}

func illegal(action Action, status string) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, action, status)
}

// Apply merges a status update response into o. Only fields the backend
// reported are changed; nothing is inferred locally.
func Apply(o *model.Order, p model.OrderPatch) {
	if p.Status != nil && *p.Status != "" {
		o.Status = *p.Status
	}
	if p.ParallelProcessing != nil {
		if o.ParallelProcessing == nil {
			o.ParallelProcessing = &model.ParallelProcessing{}
		}
		if p.ParallelProcessing.DesignStatus != "" {
			o.ParallelProcessing.DesignStatus = p.ParallelProcessing.DesignStatus
		}
		if p.ParallelProcessing.KitchenStatus != "" {
			o.ParallelProcessing.KitchenStatus = p.ParallelProcessing.KitchenStatus
		}
	}
	if p.DesignerID != nil {
		o.DesignerID = *p.DesignerID
	}
	if p.IsSentBack != nil {
		o.IsSentBack = *p.IsSentBack
	}
	if p.FinalCheckNotes != nil {
		o.FinalCheckNotes = *p.FinalCheckNotes
	}
	if p.ReturnReason != nil {
		o.ReturnReason = *p.ReturnReason
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.TeamNotes != nil {
		o.TeamNotes = *p.TeamNotes
	}
	if p.PartialRefundAmount != nil {
		amt := *p.PartialRefundAmount
		o.PartialRefundAmount = &amt
	}
	if p.UpdatedAt != nil {
		o.UpdatedAt = *p.UpdatedAt
	}
}
