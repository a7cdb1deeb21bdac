package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderInput carries every non-derived field required to create an
// order. The repository derives balance and payment status and initializes
// sync metadata.
type CreateOrderInput struct {
	OrderCode      string
	CustomerName   string
	BookingDate    time.Time
	DeliveryDate   time.Time
	Measurements   string
	ProductDetails string
	Notes          string
	Images         []string
	PriceTotal     decimal.Decimal
	AdvancePaid    decimal.Decimal
	PaymentMethod  PaymentMethod
}

// OrderUpdate is the typed edit command: nil fields are left untouched.
// Financial fields are deliberately absent; money only moves through
// PaymentUpdate so every change lands in the payment history.
type OrderUpdate struct {
	OrderCode      *string
	CustomerName   *string
	BookingDate    *time.Time
	DeliveryDate   *time.Time
	Measurements   *string
	ProductDetails *string
	Notes          *string
	Images         *[]string
	Status         *OrderStatus
}

// PaymentUpdate is the financial snapshot written atomically with its
// history entry.
type PaymentUpdate struct {
	AdvancePaid   decimal.Decimal
	BalanceAmount decimal.Decimal
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Entry         PaymentEntry
}
