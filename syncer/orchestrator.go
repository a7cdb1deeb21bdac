package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
	"github.com/priya-sharma/stitchbook-api/repository"
	"github.com/priya-sharma/stitchbook-api/services"
	"github.com/priya-sharma/stitchbook-api/store"
	"github.com/priya-sharma/stitchbook-api/utils"
)

// OrdersCollection is the remote document collection for orders.
const OrdersCollection = "orders"

// Session identifies who is running a sync pass.
type Session struct {
	UserID string
	Role   string
}

// OrderError is a per-order sync failure. It is collected, not thrown: one
// order's failure never aborts the pass.
type OrderError struct {
	OrderCode string
	Reason    string
}

func (e OrderError) Error() string {
	return fmt.Sprintf("order %s: %s", e.OrderCode, e.Reason)
}

// Result is the outcome of one sync pass.
type Result struct {
	Success  bool
	Uploaded int
	Errors   []OrderError
}

// Orchestrator runs one-shot upload passes reconciling local unsynced
// orders with the remote backend. Uploads are strictly local-to-remote;
// there is no download or merge path.
type Orchestrator struct {
	repo    *repository.OrderRepository
	store   *store.LocalStore
	backend services.RemoteBackend
	log     logger.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(repo *repository.OrderRepository, s *store.LocalStore, backend services.RemoteBackend, log logger.Logger) *Orchestrator {
	return &Orchestrator{repo: repo, store: s, backend: backend, log: log}
}

// Available reports whether the remote backend can accept uploads.
func (o *Orchestrator) Available() bool {
	return o.backend.Available()
}

// RunPass uploads every eligible order once. Eligible means no cloud id yet
// or locally marked pending. Each order's outcome is isolated: a failure is
// recorded against that order and the pass moves on. The pass outcome is
// persisted win or lose so the UI can show the last sync status.
func (o *Orchestrator) RunPass(ctx context.Context, sess Session) (Result, error) {
	if !o.backend.Available() {
		return Result{}, apperrors.ErrBackendUnavailable
	}

	orders, err := o.repo.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read local orders: %w", err)
	}

	var result Result
	for _, order := range orders {
		if order.CloudID != nil && order.SyncStatus == models.SyncSynced {
			continue
		}

		// Attribution gate: a staff caller cannot prove it owns an order that
		// someone has already synced, so it refuses rather than risk writing
		// over another user's data.
		if sess.Role == models.RoleStaff && order.CloudID != nil {
			result.Errors = append(result.Errors, OrderError{
				OrderCode: order.OrderCode,
				Reason:    "staff cannot re-sync an order that was already uploaded",
			})
			continue
		}

		if err := o.syncOrder(ctx, sess, &order); err != nil {
			o.log.Warn("Order sync failed", "order", order.OrderCode, "error", err)
			result.Errors = append(result.Errors, OrderError{
				OrderCode: order.OrderCode,
				Reason:    err.Error(),
			})
			continue
		}
		result.Uploaded++
	}

	result.Success = len(result.Errors) == 0
	o.saveRun(result)
	return result, nil
}

// syncOrder uploads one order: images first, in index order, then the
// sanitized record. A partial image URL list is persisted as soon as any
// image succeeds so a retry never re-uploads what already landed.
func (o *Orchestrator) syncOrder(ctx context.Context, sess Session, order *models.Order) error {
	for i, image := range order.Images {
		if i < len(order.ImageStorageURLs) && order.ImageStorageURLs[i] != nil {
			continue
		}

		blob, mimeType, err := utils.DecodeImage(image)
		if err != nil {
			return fmt.Errorf("image %d unreadable: %v", i, err)
		}

		path := ObjectPath(sess.UserID, order.OrderCode, i, utils.ImageExtension(mimeType))
		url, err := o.backend.PutObject(ctx, path, blob, mimeType)
		if err != nil {
			return fmt.Errorf("image %d upload failed: %v", i, err)
		}

		if err := o.repo.SetImageStorageURL(order.ID, i, url); err != nil {
			return fmt.Errorf("image %d url could not be saved: %v", i, err)
		}
		for len(order.ImageStorageURLs) <= i {
			order.ImageStorageURLs = append(order.ImageStorageURLs, nil)
		}
		order.ImageStorageURLs[i] = &url
	}

	payload := buildPayload(*order, sess)

	existingID := ""
	if order.CloudID != nil {
		existingID = *order.CloudID
	}

	cloudID, err := o.backend.Upload(ctx, OrdersCollection, payload, existingID)
	if err != nil {
		return fmt.Errorf("record upload failed: %v", err)
	}

	if err := o.repo.MarkSynced(order.ID, cloudID, time.Now().UTC()); err != nil {
		return fmt.Errorf("could not record sync result: %v", err)
	}
	return nil
}

// buildPayload flattens the order for upload. Only defined fields are
// included so an absent field never nulls out a remote one. Staff sessions
// never transmit pricing: the financial fields and the payment history are
// stripped before upload.
func buildPayload(order models.Order, sess Session) map[string]interface{} {
	payload := map[string]interface{}{
		"localId":        order.ID,
		"ownerId":        sess.UserID,
		"orderId":        order.OrderCode,
		"customerName":   order.CustomerName,
		"bookingDate":    order.BookingDate.UTC().Format(time.RFC3339Nano),
		"deliveryDate":   order.DeliveryDate.UTC().Format(time.RFC3339Nano),
		"measurements":   order.Measurements,
		"productDetails": order.ProductDetails,
		"notes":          order.Notes,
		"status":         string(order.Status),
		"createdAt":      order.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	if order.DeliveredAt != nil {
		payload["deliveredAt"] = order.DeliveredAt.UTC().Format(time.RFC3339Nano)
	}

	urls := make([]interface{}, len(order.ImageStorageURLs))
	for i, u := range order.ImageStorageURLs {
		if u != nil {
			urls[i] = *u
		}
	}
	payload["imageStorageUrls"] = urls

	if sess.Role != models.RoleStaff {
		payload["priceTotal"] = order.PriceTotal.String()
		payload["advancePaid"] = order.AdvancePaid.String()
		payload["balanceAmount"] = order.BalanceAmount.String()
		payload["paymentStatus"] = string(order.PaymentStatus)
		payload["paymentMethod"] = string(order.PaymentMethod)

		history := make([]interface{}, 0, len(order.PaymentHistory))
		for _, entry := range order.PaymentHistory {
			entryDoc := map[string]interface{}{
				"timestamp":            entry.Timestamp.UTC().Format(time.RFC3339Nano),
				"kind":                 string(entry.Kind),
				"resultingAdvancePaid": entry.ResultingAdvancePaid.String(),
				"method":               string(entry.Method),
				"note":                 entry.Note,
			}
			if entry.Amount != nil {
				entryDoc["amount"] = entry.Amount.String()
			}
			history = append(history, entryDoc)
		}
		payload["paymentHistory"] = history
	}

	return payload
}

// ObjectPath is the deterministic remote path for an order's image: the same
// (user, order code, index) always lands at the same key, which is what makes
// re-running a partially failed pass idempotent.
func ObjectPath(userID, orderCode string, index int, ext string) string {
	return fmt.Sprintf("uploads/%s/%s/image_%d%s", userID, orderCode, index, ext)
}

func (o *Orchestrator) saveRun(result Result) {
	message := fmt.Sprintf("synced %d, %d errors", result.Uploaded, len(result.Errors))
	run := store.SyncRun{
		RanAt:    time.Now().UTC(),
		Success:  result.Success,
		Uploaded: result.Uploaded,
		Message:  message,
	}
	if err := o.store.SaveSyncRun(run); err != nil {
		o.log.Error("Failed to persist sync run", "error", err)
	}
}
