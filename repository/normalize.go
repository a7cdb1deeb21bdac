package repository

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/store"
)

// NormalizeDoc repairs a stored document into a well-formed Order. Records
// written by older schema versions, or half-touched by a failed migration,
// must still render safely: money is clamped to >= 0, balance and payment
// status are recomputed rather than trusted, enumerations fall back to their
// defaults and sync metadata gets unsynced defaults. Normalizing an already
// normalized order is a no-op.
func NormalizeDoc(id uint, doc store.Doc) models.Order {
	total := docAmount(doc, "priceTotal")
	paid := docAmount(doc, "advancePaid")

	order := models.Order{
		ID:             id,
		OrderCode:      docString(doc, "orderId"),
		CustomerName:   docString(doc, "customerName"),
		BookingDate:    docTime(doc, "bookingDate"),
		DeliveryDate:   docTime(doc, "deliveryDate"),
		Measurements:   docString(doc, "measurements"),
		ProductDetails: docString(doc, "productDetails"),
		Notes:          docString(doc, "notes"),
		Images:         docStringSlice(doc, "images"),
		Status:         docStatus(doc),
		DeliveredAt:    docTimePtr(doc, "deliveredAt"),
		CreatedAt:      docTime(doc, "createdAt"),

		PriceTotal:    total,
		AdvancePaid:   paid,
		BalanceAmount: models.DeriveBalance(total, paid),
		PaymentStatus: models.DerivePaymentStatus(total, paid),
		PaymentMethod: models.NormalizeMethod(models.PaymentMethod(docString(doc, "paymentMethod"))),

		PaymentHistory: docHistory(doc),

		CloudID:          docCloudID(doc),
		SyncStatus:       docSyncStatus(doc),
		LastSyncedAt:     docTimePtr(doc, "lastSyncedAt"),
		ImageStorageURLs: docURLSlice(doc, "imageStorageUrls"),
	}

	return order
}

// DocFromOrder flattens an Order into its stored document. The v4 field
// names (remoteId, syncState) are written alongside the v5 ones so records
// stay readable by anything still on the old names.
func DocFromOrder(order models.Order) store.Doc {
	doc := store.Doc{
		"orderId":        order.OrderCode,
		"customerName":   order.CustomerName,
		"bookingDate":    formatTime(order.BookingDate),
		"deliveryDate":   formatTime(order.DeliveryDate),
		"measurements":   order.Measurements,
		"productDetails": order.ProductDetails,
		"notes":          order.Notes,
		"images":         stringsToAny(order.Images),
		"status":         string(order.Status),
		"deliveredAt":    formatTimePtr(order.DeliveredAt),
		"createdAt":      formatTime(order.CreatedAt),

		"priceTotal":    order.PriceTotal.String(),
		"advancePaid":   order.AdvancePaid.String(),
		"balanceAmount": order.BalanceAmount.String(),
		"paymentStatus": string(order.PaymentStatus),
		"paymentMethod": string(order.PaymentMethod),

		"paymentHistory": historyToAny(order.PaymentHistory),

		"lastSyncedAt":     formatTimePtr(order.LastSyncedAt),
		"imageStorageUrls": urlsToAny(order.ImageStorageURLs),
	}

	if order.CloudID != nil {
		doc["cloudId"] = *order.CloudID
		doc["remoteId"] = *order.CloudID
	} else {
		doc["cloudId"] = nil
		doc["remoteId"] = nil
	}
	doc["syncStatus"] = string(order.SyncStatus)
	doc["syncState"] = string(order.SyncStatus)

	return doc
}

func docString(doc store.Doc, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

// docAmount reads a money field. Values are stored as decimal strings but
// older records may hold raw JSON numbers; anything unparseable, non-finite
// or negative collapses to zero.
func docAmount(doc store.Doc, key string) decimal.Decimal {
	switch v := doc[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return models.ClampAmount(d)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		return models.ClampAmount(decimal.NewFromFloat(v))
	}
	return decimal.Zero
}

func docTime(doc store.Doc, key string) time.Time {
	if v, ok := doc[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func docTimePtr(doc store.Doc, key string) *time.Time {
	if v, ok := doc[key].(string); ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &t
		}
	}
	return nil
}

func docStatus(doc store.Doc) models.OrderStatus {
	if docString(doc, "status") == string(models.StatusDelivered) {
		return models.StatusDelivered
	}
	return models.StatusPending
}

func docStringSlice(doc store.Doc, key string) []string {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out
}

// docURLSlice keeps the sparse shape: a null at index i means image i has
// not been uploaded yet.
func docURLSlice(doc store.Doc, key string) []*string {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return []*string{}
	}
	out := make([]*string, len(raw))
	for i, item := range raw {
		if s, isString := item.(string); isString && s != "" {
			url := s
			out[i] = &url
		}
	}
	return out
}

func docCloudID(doc store.Doc) *string {
	// v5 field first, then the v4 name it superseded.
	for _, key := range []string{"cloudId", "remoteId"} {
		if v, ok := doc[key].(string); ok && v != "" {
			id := v
			return &id
		}
	}
	return nil
}

func docSyncStatus(doc store.Doc) models.SyncState {
	for _, key := range []string{"syncStatus", "syncState"} {
		if v, ok := doc[key].(string); ok {
			if v == string(models.SyncSynced) {
				return models.SyncSynced
			}
			if v == string(models.SyncPending) {
				return models.SyncPending
			}
		}
	}
	return models.SyncPending
}

func docHistory(doc store.Doc) []models.PaymentEntry {
	raw, ok := doc["paymentHistory"].([]interface{})
	if !ok {
		return []models.PaymentEntry{}
	}

	entries := make([]models.PaymentEntry, 0, len(raw))
	for _, item := range raw {
		entryDoc, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}

		entry := models.PaymentEntry{
			Timestamp:            docTime(entryDoc, "timestamp"),
			Kind:                 models.PaymentChangeKind(docString(entryDoc, "kind")),
			ResultingAdvancePaid: docAmount(entryDoc, "resultingAdvancePaid"),
			Method:               models.NormalizeMethod(models.PaymentMethod(docString(entryDoc, "method"))),
			Note:                 docString(entryDoc, "note"),
		}
		if _, present := entryDoc["amount"]; present {
			amount := docAmount(entryDoc, "amount")
			entry.Amount = &amount
		}
		entries = append(entries, entry)
	}
	return entries
}

func historyToAny(entries []models.PaymentEntry) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		entryDoc := map[string]interface{}{
			"timestamp":            formatTime(entry.Timestamp),
			"kind":                 string(entry.Kind),
			"resultingAdvancePaid": entry.ResultingAdvancePaid.String(),
			"method":               string(entry.Method),
			"note":                 entry.Note,
		}
		if entry.Amount != nil {
			entryDoc["amount"] = entry.Amount.String()
		}
		out = append(out, entryDoc)
	}
	return out
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func urlsToAny(urls []*string) []interface{} {
	out := make([]interface{}, len(urls))
	for i, u := range urls {
		if u != nil {
			out[i] = *u
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
