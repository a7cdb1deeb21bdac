package repository

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
	"github.com/priya-sharma/stitchbook-api/store"
)

// OrderRepository is the only component permitted to read or write orders.
// It owns read-time normalization and write-time derivation of the financial
// fields.
type OrderRepository struct {
	store *store.LocalStore
	log   logger.Logger
}

// NewOrderRepository creates an OrderRepository over the given store.
func NewOrderRepository(s *store.LocalStore, log logger.Logger) *OrderRepository {
	return &OrderRepository{store: s, log: log}
}

// ReadAll returns every order in storage order, normalized. Callers sort
// explicitly (the API lists by createdAt descending).
func (r *OrderRepository) ReadAll() ([]models.Order, error) {
	records, err := r.store.GetAll()
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, NormalizeDoc(rec.ID, rec.Doc))
	}
	return orders, nil
}

// ReadByID returns one normalized order, or found=false.
func (r *OrderRepository) ReadByID(id uint) (models.Order, bool, error) {
	doc, found, err := r.store.GetByID(id)
	if err != nil || !found {
		return models.Order{}, found, err
	}
	return NormalizeDoc(id, doc), true, nil
}

// Create validates input, derives the financial fields and persists a new
// order with unsynced defaults.
func (r *OrderRepository) Create(input models.CreateOrderInput) (models.Order, error) {
	if strings.TrimSpace(input.OrderCode) == "" {
		return models.Order{}, apperrors.NewValidationError("orderId", "order code is required")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return models.Order{}, apperrors.NewValidationError("customerName", "customer name is required")
	}
	if strings.TrimSpace(input.ProductDetails) == "" {
		return models.Order{}, apperrors.NewValidationError("productDetails", "product details are required")
	}
	if input.PriceTotal.IsNegative() {
		return models.Order{}, apperrors.NewValidationError("priceTotal", "total price cannot be negative")
	}
	if input.AdvancePaid.IsNegative() {
		return models.Order{}, apperrors.NewValidationError("advancePaid", "advance paid cannot be negative")
	}
	if input.AdvancePaid.GreaterThan(input.PriceTotal) {
		return models.Order{}, apperrors.NewValidationError("advancePaid", "advance paid cannot exceed total price")
	}

	now := time.Now().UTC()
	order := models.Order{
		OrderCode:        input.OrderCode,
		CustomerName:     input.CustomerName,
		BookingDate:      input.BookingDate,
		DeliveryDate:     input.DeliveryDate,
		Measurements:     input.Measurements,
		ProductDetails:   input.ProductDetails,
		Notes:            input.Notes,
		Images:           input.Images,
		Status:           models.StatusPending,
		CreatedAt:        now,
		PriceTotal:       input.PriceTotal,
		AdvancePaid:      input.AdvancePaid,
		BalanceAmount:    models.DeriveBalance(input.PriceTotal, input.AdvancePaid),
		PaymentStatus:    models.DerivePaymentStatus(input.PriceTotal, input.AdvancePaid),
		PaymentMethod:    models.NormalizeMethod(input.PaymentMethod),
		PaymentHistory:   []models.PaymentEntry{},
		SyncStatus:       models.SyncPending,
		ImageStorageURLs: []*string{},
	}

	id, err := r.store.Insert(DocFromOrder(order))
	if err != nil {
		return models.Order{}, err
	}
	order.ID = id
	return order, nil
}

// Update merges the typed edit command onto the existing order inside one
// storage transaction. A transition to Delivered stamps deliveredAt with the
// current time; reverting away from Delivered keeps the stamp. Any merge
// marks the order pending for sync.
func (r *OrderRepository) Update(id uint, cmd models.OrderUpdate) error {
	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)

		if cmd.OrderCode != nil {
			if strings.TrimSpace(*cmd.OrderCode) == "" {
				return nil, apperrors.NewValidationError("orderId", "order code is required")
			}
			order.OrderCode = *cmd.OrderCode
		}
		if cmd.CustomerName != nil {
			if strings.TrimSpace(*cmd.CustomerName) == "" {
				return nil, apperrors.NewValidationError("customerName", "customer name is required")
			}
			order.CustomerName = *cmd.CustomerName
		}
		if cmd.BookingDate != nil {
			order.BookingDate = *cmd.BookingDate
		}
		if cmd.DeliveryDate != nil {
			order.DeliveryDate = *cmd.DeliveryDate
		}
		if cmd.Measurements != nil {
			order.Measurements = *cmd.Measurements
		}
		if cmd.ProductDetails != nil {
			if strings.TrimSpace(*cmd.ProductDetails) == "" {
				return nil, apperrors.NewValidationError("productDetails", "product details are required")
			}
			order.ProductDetails = *cmd.ProductDetails
		}
		if cmd.Notes != nil {
			order.Notes = *cmd.Notes
		}
		if cmd.Images != nil {
			order.Images = *cmd.Images
		}
		if cmd.Status != nil {
			if *cmd.Status == models.StatusDelivered && order.Status != models.StatusDelivered {
				now := time.Now().UTC()
				order.DeliveredAt = &now
			}
			order.Status = *cmd.Status
		}

		order.SyncStatus = models.SyncPending
		return DocFromOrder(order), nil
	})
}

// UpdatePayment appends the command's history entry and writes the new
// financial snapshot atomically with it, marking the order pending.
func (r *OrderRepository) UpdatePayment(id uint, cmd models.PaymentUpdate) error {
	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		if err := applyPayment(&order, cmd); err != nil {
			return nil, err
		}
		return DocFromOrder(order), nil
	})
}

// AddPayment records an incremental top-up of the advance paid.
func (r *OrderRepository) AddPayment(id uint, amount decimal.Decimal, method models.PaymentMethod, note string) error {
	if !amount.IsPositive() {
		return apperrors.NewValidationError("amount", "payment amount must be positive")
	}

	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		newPaid := order.AdvancePaid.Add(amount)
		cmd := buildPaymentUpdate(order, models.ChangeAddPayment, &amount, newPaid, method, note)
		if err := applyPayment(&order, cmd); err != nil {
			return nil, err
		}
		return DocFromOrder(order), nil
	})
}

// SetAdvance replaces the paid-to-date amount outright.
func (r *OrderRepository) SetAdvance(id uint, amount decimal.Decimal, method models.PaymentMethod, note string) error {
	if amount.IsNegative() {
		return apperrors.NewValidationError("amount", "advance cannot be negative")
	}

	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		cmd := buildPaymentUpdate(order, models.ChangeSetAdvance, nil, amount, method, note)
		if err := applyPayment(&order, cmd); err != nil {
			return nil, err
		}
		return DocFromOrder(order), nil
	})
}

// AppendImage attaches one encoded image to the order's image list and
// marks the order pending.
func (r *OrderRepository) AppendImage(id uint, encoded string) error {
	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		order.Images = append(order.Images, encoded)
		order.SyncStatus = models.SyncPending
		return DocFromOrder(order), nil
	})
}

// MarkSynced records a confirmed remote write: cloud id, last-synced
// timestamp and the synced state. Only the sync pass calls this.
func (r *OrderRepository) MarkSynced(id uint, cloudID string, syncedAt time.Time) error {
	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		order.CloudID = &cloudID
		order.LastSyncedAt = &syncedAt
		order.SyncStatus = models.SyncSynced
		return DocFromOrder(order), nil
	})
}

// SetImageStorageURL persists one uploaded image URL at its index, so a
// retried sync pass does not re-upload images that already succeeded. The
// sync state is left untouched.
func (r *OrderRepository) SetImageStorageURL(id uint, index int, url string) error {
	return r.store.UpdateDoc(id, func(doc store.Doc) (store.Doc, error) {
		order := NormalizeDoc(id, doc)
		for len(order.ImageStorageURLs) <= index {
			order.ImageStorageURLs = append(order.ImageStorageURLs, nil)
		}
		order.ImageStorageURLs[index] = &url
		return DocFromOrder(order), nil
	})
}

func buildPaymentUpdate(order models.Order, kind models.PaymentChangeKind, amount *decimal.Decimal, newPaid decimal.Decimal, method models.PaymentMethod, note string) models.PaymentUpdate {
	return models.PaymentUpdate{
		AdvancePaid:   newPaid,
		BalanceAmount: models.DeriveBalance(order.PriceTotal, newPaid),
		PaymentStatus: models.DerivePaymentStatus(order.PriceTotal, newPaid),
		PaymentMethod: models.NormalizeMethod(method),
		Entry: models.PaymentEntry{
			Timestamp:            time.Now().UTC(),
			Kind:                 kind,
			Amount:               amount,
			ResultingAdvancePaid: newPaid,
			Method:               models.NormalizeMethod(method),
			Note:                 note,
		},
	}
}

// applyPayment enforces the financial invariants and mutates order in place.
// The snapshot is re-derived from (total, paid) rather than trusting the
// command, and the history entry is appended, never merged.
func applyPayment(order *models.Order, cmd models.PaymentUpdate) error {
	if cmd.AdvancePaid.IsNegative() {
		return apperrors.NewValidationError("advancePaid", "advance paid cannot be negative")
	}
	if cmd.AdvancePaid.GreaterThan(order.PriceTotal) {
		return apperrors.NewValidationError("advancePaid", "advance paid cannot exceed total price")
	}

	order.AdvancePaid = cmd.AdvancePaid
	order.BalanceAmount = models.DeriveBalance(order.PriceTotal, cmd.AdvancePaid)
	order.PaymentStatus = models.DerivePaymentStatus(order.PriceTotal, cmd.AdvancePaid)
	order.PaymentMethod = models.NormalizeMethod(cmd.PaymentMethod)

	entry := cmd.Entry
	entry.ResultingAdvancePaid = cmd.AdvancePaid
	entry.Method = models.NormalizeMethod(entry.Method)
	order.PaymentHistory = append(order.PaymentHistory, entry)

	order.SyncStatus = models.SyncPending
	return nil
}
