package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusDelivered OrderStatus = "Delivered"
)

// PaymentStatus is derived from (priceTotal, advancePaid) and never trusted
// from storage.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
)

// PaymentMethod is the fixed payment-method enumeration.
type PaymentMethod string

const (
	MethodCash  PaymentMethod = "Cash"
	MethodUPI   PaymentMethod = "UPI"
	MethodCard  PaymentMethod = "Card"
	MethodOther PaymentMethod = "Other"

	// DefaultPaymentMethod is substituted when a stored method is absent
	// or not in the enumeration.
	DefaultPaymentMethod = MethodCash
)

// SyncState marks whether local state has unsynced changes.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// PaymentChangeKind distinguishes the two kinds of financial mutation.
type PaymentChangeKind string

const (
	// ChangeAddPayment is an incremental top-up of the advance paid.
	ChangeAddPayment PaymentChangeKind = "add-payment"
	// ChangeSetAdvance replaces the paid-to-date amount outright.
	ChangeSetAdvance PaymentChangeKind = "set-advance"
)

// PaymentEntry is one append-only payment-history record. The history is
// never rewritten or pruned; the last entry's ResultingAdvancePaid always
// equals the order's current AdvancePaid.
type PaymentEntry struct {
	Timestamp            time.Time        `json:"timestamp"`
	Kind                 PaymentChangeKind `json:"kind"`
	Amount               *decimal.Decimal `json:"amount,omitempty"` // only for add-payment
	ResultingAdvancePaid decimal.Decimal  `json:"resultingAdvancePaid"`
	Method               PaymentMethod    `json:"method"`
	Note                 string           `json:"note,omitempty"`
}

// Order is the sole persisted business entity: a customer's booking with
// delivery and payment state plus sync metadata.
type Order struct {
	ID uint `json:"id"`

	OrderCode      string      `json:"orderId"` // human-facing, not unique
	CustomerName   string      `json:"customerName"`
	BookingDate    time.Time   `json:"bookingDate"`
	DeliveryDate   time.Time   `json:"deliveryDate"`
	Measurements   string      `json:"measurements"`
	ProductDetails string      `json:"productDetails"`
	Notes          string      `json:"notes"`
	Images         []string    `json:"images"` // inline data URLs
	Status         OrderStatus `json:"status"`
	DeliveredAt    *time.Time  `json:"deliveredAt"`
	CreatedAt      time.Time   `json:"createdAt"`

	PriceTotal    decimal.Decimal `json:"priceTotal"`
	AdvancePaid   decimal.Decimal `json:"advancePaid"`
	BalanceAmount decimal.Decimal `json:"balanceAmount"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`

	PaymentHistory []PaymentEntry `json:"paymentHistory"`

	CloudID          *string    `json:"cloudId"`
	SyncStatus       SyncState  `json:"syncStatus"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt"`
	ImageStorageURLs []*string  `json:"imageStorageUrls"` // sparse, index-aligned with Images
}

// DeriveBalance returns max(0, total - paid).
func DeriveBalance(total, paid decimal.Decimal) decimal.Decimal {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// DerivePaymentStatus is the pure derivation rule: Unpaid when nothing is
// owed-against or nothing is paid, Paid when paid covers total, else Partial.
func DerivePaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	if total.IsZero() || paid.IsZero() {
		return PaymentUnpaid
	}
	if paid.GreaterThanOrEqual(total) {
		return PaymentPaid
	}
	return PaymentPartial
}

// ValidPaymentMethod reports whether m is in the fixed enumeration.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodUPI, MethodCard, MethodOther:
		return true
	}
	return false
}

// NormalizeMethod substitutes the default for anything outside the enumeration.
func NormalizeMethod(m PaymentMethod) PaymentMethod {
	if ValidPaymentMethod(m) {
		return m
	}
	return DefaultPaymentMethod
}

// ClampAmount treats a negative amount as zero. Stored money fields pass
// through this on every read so records from older schema versions render safely.
func ClampAmount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
