package enum

// ── Group A: State machines (server authoritative) ──

const (
	OrderStatusPending              = "PENDING"
	OrderStatusPendingPayment       = "PENDING_PAYMENT"
	OrderStatusDesignQueue          = "DESIGN_QUEUE"
	OrderStatusDesignProcessing     = "DESIGN_PROCESSING"
	OrderStatusDesignReady          = "DESIGN_READY"
	OrderStatusKitchenQueue         = "KITCHEN_QUEUE"
	OrderStatusKitchenProcessing    = "KITCHEN_PROCESSING"
	OrderStatusKitchenReady         = "KITCHEN_READY"
	OrderStatusParallelProcessing   = "PARALLEL_PROCESSING"
	OrderStatusFinalCheckQueue      = "FINAL_CHECK_QUEUE"
	OrderStatusFinalCheckProcessing = "FINAL_CHECK_PROCESSING"
	OrderStatusFinalCheckComplete   = "FINAL_CHECK_COMPLETE"
	OrderStatusCompleted            = "COMPLETED"
	OrderStatusCancelled            = "CANCELLED"
	OrderStatusRefunded             = "REFUNDED"
	OrderStatusPartiallyRefunded    = "PARTIALLY_REFUNDED"
)

const (
	DrawerStatusOpen   = "OPEN"
	DrawerStatusClosed = "CLOSED"
)

const (
	PaymentStatusPaid          = "PAID"
	PaymentStatusPartiallyPaid = "PARTIALLY_PAID"
	PaymentStatusPending       = "PENDING"
)

// ── Group B: Labels sent by the backend ──

const (
	PaymentMethodCash         = "CASH"
	PaymentMethodCard         = "CARD"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
	PaymentMethodPBL          = "PBL"
	PaymentMethodTalabat      = "TALABAT"
	PaymentMethodCOD          = "COD"
	PaymentMethodPayLater     = "PAY_LATER"
	PaymentMethodSplit        = "SPLIT"
)

// Payment total sub-keys reported on a drawer session.
const (
	PaymentTotalSplitCash   = "SPLIT_CASH"
	PaymentTotalSplitCard   = "SPLIT_CARD"
	PaymentTotalPartialCash = "PARTIAL_CASH"
	PaymentTotalPartialCard = "PARTIAL_CARD"
)

const (
	DeliveryMethodDelivery = "DELIVERY"
	DeliveryMethodPickup   = "PICKUP"
)

const (
	DrawerOpAddCash        = "ADD_CASH"
	DrawerOpTakeCash       = "TAKE_CASH"
	DrawerOpOpeningBalance = "OPENING_BALANCE"
	DrawerOpSale           = "SALE"
)

// ── Group C: Station-side labels ──

const (
	UserRoleSuperAdmin = "SUPER_ADMIN"
	UserRoleAdmin      = "ADMIN"
	UserRoleCashier    = "CASHIER"
	UserRoleDesigner   = "DESIGNER"
	UserRoleKitchen    = "KITCHEN"
)

const (
	DisplayPOS        = "POS"
	DisplayDesign     = "DESIGN"
	DisplayKitchen    = "KITCHEN"
	DisplayFinalCheck = "FINAL_CHECK"
)

const (
	EventOrderStatusUpdate = "ORDER_STATUS_UPDATE"
	EventOrdersRefreshed   = "ORDERS_REFRESHED"
	EventDisplayConnected  = "DISPLAY_CONNECTED"
)
