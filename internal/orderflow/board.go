package orderflow

import (
	"sort"
	"strings"
	"time"

	"github.com/kiwari-pos/station/internal/enum"
	"github.com/kiwari-pos/station/internal/model"
)

// Location is the zone fulfillment dates and slots are interpreted in.
var Location = time.Local

var laneStates = map[string]map[string]bool{
	enum.DisplayDesign: {
		enum.OrderStatusDesignQueue:      true,
		enum.OrderStatusDesignProcessing: true,
		enum.OrderStatusDesignReady:      true,
	},
	enum.DisplayKitchen: {
		enum.OrderStatusKitchenQueue:      true,
		enum.OrderStatusKitchenProcessing: true,
		enum.OrderStatusKitchenReady:      true,
	},
	enum.DisplayFinalCheck: {
		enum.OrderStatusFinalCheckQueue:      true,
		enum.OrderStatusFinalCheckProcessing: true,
		enum.OrderStatusFinalCheckComplete:   true,
	},
}

// Visible reports whether the order belongs on display for staff. A design
// that has been claimed, or sent back to its designer, shows only to its owner.
func Visible(o model.Order, display string, staff model.Staff) bool {
	if display == enum.DisplayPOS {
		return true
	}
	states, ok := laneStates[display]
	if !ok {
		return false
	}
	lane := Lane(o, display)
	if !states[lane] {
		return false
	}
	if display != enum.DisplayDesign || o.DesignerID == "" {
		return true
	}
	claimed := lane != enum.OrderStatusDesignQueue || o.IsSentBack
	return !claimed || o.DesignerID == staff.ID
}

// Board filters orders for display and sorts them by fulfillment time.
func Board(orders []model.Order, display string, staff model.Staff) []model.Order {
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if Visible(o, display, staff) {
			out = append(out, o)
		}
	}
	SortBySchedule(out)
	return out
}

// SortBySchedule orders by ScheduledAt, earliest first. Orders with no
// resolvable fulfillment date sort by their creation time, and orders with
// neither go last.
func SortBySchedule(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return sortKey(orders[i]).Before(sortKey(orders[j]))
	})
}

// undated sorts after any real schedule.
var undated = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

func sortKey(o model.Order) time.Time {
	if t, ok := ScheduledAt(o); ok {
		return t
	}
	if o.CreatedAt.IsZero() {
		return undated
	}
	return o.CreatedAt
}

// ScheduledAt combines the fulfillment date with the start of its time slot.
// A date without a parseable slot resolves to the start of that day.
func ScheduledAt(o model.Order) (time.Time, bool) {
	details := o.Pickup
	if o.DeliveryMethod == enum.DeliveryMethodDelivery {
		details = o.Delivery
	}
	day, ok := parseDate(details.Date)
	if !ok {
		return time.Time{}, false
	}
	hour, minute, ok := SlotStart(details.TimeSlot)
	if !ok {
		return day, true
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
}

var slotLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

// SlotStart parses the start of a slot like "10:00 AM - 11:00 AM" into a
// 24-hour clock.
func SlotStart(slot string) (hour, minute int, ok bool) {
	start, _, _ := strings.Cut(slot, "-")
	start = strings.ToUpper(strings.TrimSpace(start))
	if start == "" {
		return 0, 0, false
	}
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, start); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		s = t.In(Location).Format(time.DateOnly)
	}
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	t, err := time.ParseInLocation(time.DateOnly, s, Location)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
