package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
	"github.com/priya-sharma/stitchbook-api/repository"
	"github.com/priya-sharma/stitchbook-api/services"
	"github.com/priya-sharma/stitchbook-api/store"
	"github.com/priya-sharma/stitchbook-api/utils"
)

type syncFixture struct {
	repo    *repository.OrderRepository
	store   *store.LocalStore
	backend *services.MockBackend
	orch    *Orchestrator
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	log := logger.NewNopLogger()
	notifier := store.NewChangeNotifier(log)
	s, err := store.Open(store.Options{Path: ":memory:"}, notifier, log)
	require.NoError(t, err)

	repo := repository.NewOrderRepository(s, log)
	backend := services.NewMockBackend()
	return &syncFixture{
		repo:    repo,
		store:   s,
		backend: backend,
		orch:    NewOrchestrator(repo, s, backend, log),
	}
}

func (f *syncFixture) createOrder(t *testing.T, code string, imageCount int) models.Order {
	t.Helper()

	input := models.CreateOrderInput{
		OrderCode:      code,
		CustomerName:   "Asha Rao",
		BookingDate:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DeliveryDate:   time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
		ProductDetails: "lehenga",
		PriceTotal:     mustDecimal("2500"),
		AdvancePaid:    mustDecimal("500"),
		PaymentMethod:  models.MethodCash,
	}
	for i := 0; i < imageCount; i++ {
		payload := []byte{0x89, 0x50, byte(i)}
		input.Images = append(input.Images, utils.EncodeImage(payload, "image/png"))
	}

	order, err := f.repo.Create(input)
	require.NoError(t, err)
	return order
}

func mustDecimal(value string) decimal.Decimal {
	out, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return out
}

func adminSession() Session {
	return Session{UserID: "user-1", Role: models.RoleAdmin}
}

func TestRunPassUploadsPendingOrders(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-100", 2)

	result, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Uploaded)
	assert.Empty(t, result.Errors)

	// Both images landed at their deterministic paths.
	assert.True(t, f.backend.ObjectExists(ObjectPath("user-1", "ORD-100", 0, ".png")))
	assert.True(t, f.backend.ObjectExists(ObjectPath("user-1", "ORD-100", 1, ".png")))

	// The local record was stamped synced.
	current, _, err := f.repo.ReadByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, current.SyncStatus)
	require.NotNil(t, current.CloudID)
	require.NotNil(t, current.LastSyncedAt)
	require.Len(t, current.ImageStorageURLs, 2)
	assert.NotNil(t, current.ImageStorageURLs[0])
	assert.NotNil(t, current.ImageStorageURLs[1])

	doc, exists := f.backend.Document(OrdersCollection, *current.CloudID)
	require.True(t, exists)
	assert.Equal(t, "ORD-100", doc["orderId"])
	assert.Equal(t, "user-1", doc["ownerId"])
	assert.Equal(t, "2500", doc["priceTotal"])
}

func TestRunPassIsolatesPerOrderFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.createOrder(t, "ORD-A", 1)
	f.createOrder(t, "ORD-B", 1)
	f.createOrder(t, "ORD-C", 1)

	f.backend.FailObjectPuts("ORD-B", errors.New("connection reset"))

	result, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Uploaded)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ORD-B", result.Errors[0].OrderCode)
	assert.Contains(t, result.Errors[0].Reason, "connection reset")
	assert.Equal(t, 2, f.backend.DocumentCount(OrdersCollection))
}

func TestRunPassSkipsSyncedOrders(t *testing.T) {
	f := newSyncFixture(t)
	f.createOrder(t, "ORD-1", 0)

	first, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Uploaded)

	second, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Uploaded)
	assert.True(t, second.Success)
	assert.Equal(t, 1, f.backend.DocumentCount(OrdersCollection))
}

func TestRunPassReusesCloudIDAfterEdit(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-1", 0)

	_, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	current, _, err := f.repo.ReadByID(order.ID)
	require.NoError(t, err)
	firstCloudID := *current.CloudID

	notes := "shorten sleeves"
	require.NoError(t, f.repo.Update(order.ID, models.OrderUpdate{Notes: &notes}))

	_, err = f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	// Re-sync merged into the same remote doc instead of creating a new one.
	assert.Equal(t, 1, f.backend.DocumentCount(OrdersCollection))
	doc, exists := f.backend.Document(OrdersCollection, firstCloudID)
	require.True(t, exists)
	assert.Equal(t, "shorten sleeves", doc["notes"])
}

func TestRunPassResumesAfterPartialImageFailure(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-1", 3)

	f.backend.FailObjectPuts("image_1", errors.New("timeout"))

	result, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Uploaded)

	// Image 0 landed before the failure and its URL stuck.
	current, _, err := f.repo.ReadByID(order.ID)
	require.NoError(t, err)
	require.Len(t, current.ImageStorageURLs, 1)
	assert.NotNil(t, current.ImageStorageURLs[0])
	assert.Equal(t, models.SyncPending, current.SyncStatus)

	assert.True(t, f.backend.ObjectExists(ObjectPath("user-1", "ORD-1", 0, ".png")))

	// Retry after the fault clears: only the missing images are sent.
	f.backend.Clear()
	result, err = f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Uploaded)

	// Image 0 was never re-uploaded, images 1 and 2 were.
	_, resent := f.backend.Object(ObjectPath("user-1", "ORD-1", 0, ".png"))
	assert.False(t, resent, "already uploaded image must not be resent")
	assert.True(t, f.backend.ObjectExists(ObjectPath("user-1", "ORD-1", 1, ".png")))
	assert.True(t, f.backend.ObjectExists(ObjectPath("user-1", "ORD-1", 2, ".png")))
}

func TestStaffPayloadOmitsFinancialFields(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-1", 0)
	require.NoError(t, f.repo.AddPayment(order.ID, mustDecimal("100"), models.MethodUPI, ""))

	sess := Session{UserID: "staff-1", Role: models.RoleStaff}
	result, err := f.orch.RunPass(context.Background(), sess)
	require.NoError(t, err)
	require.True(t, result.Success)

	current, _, err := f.repo.ReadByID(order.ID)
	require.NoError(t, err)
	doc, exists := f.backend.Document(OrdersCollection, *current.CloudID)
	require.True(t, exists)

	for _, key := range []string{"priceTotal", "advancePaid", "balanceAmount", "paymentStatus", "paymentMethod", "paymentHistory"} {
		_, present := doc[key]
		assert.False(t, present, "staff payload must not carry %s", key)
	}
	assert.Equal(t, "ORD-1", doc["orderId"])
}

func TestStaffCannotResyncUploadedOrder(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-1", 0)

	_, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	notes := "edited offline"
	require.NoError(t, f.repo.Update(order.ID, models.OrderUpdate{Notes: &notes}))

	sess := Session{UserID: "staff-1", Role: models.RoleStaff}
	result, err := f.orch.RunPass(context.Background(), sess)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Uploaded)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ORD-1", result.Errors[0].OrderCode)

	// The order stays pending for a later admin pass.
	current, _, err := f.repo.ReadByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, current.SyncStatus)
}

func TestRunPassPersistsSyncRun(t *testing.T) {
	f := newSyncFixture(t)
	f.createOrder(t, "ORD-1", 0)
	f.createOrder(t, "ORD-2", 0)
	f.backend.FailUploads(errors.New("service down"))

	_, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	run, found, err := f.store.LastSyncRun()
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, run.Success)
	assert.Equal(t, 0, run.Uploaded)
	assert.Contains(t, run.Message, "2 errors")
}

func TestRunPassDeclinesWhenBackendUnavailable(t *testing.T) {
	log := logger.NewNopLogger()
	notifier := store.NewChangeNotifier(log)
	s, err := store.Open(store.Options{Path: ":memory:"}, notifier, log)
	require.NoError(t, err)
	repo := repository.NewOrderRepository(s, log)

	orch := NewOrchestrator(repo, s, services.NewNoopBackend(), log)
	_, err = orch.RunPass(context.Background(), adminSession())
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)

	// No run is recorded for a pass that never started.
	_, found, err := s.LastSyncRun()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunPassSkipsUndecodableImage(t *testing.T) {
	f := newSyncFixture(t)
	order := f.createOrder(t, "ORD-1", 0)
	require.NoError(t, f.repo.AppendImage(order.ID, "data:image/png;base64,!!!not-base64!!!"))

	result, err := f.orch.RunPass(context.Background(), adminSession())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Reason, "image 0")
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "uploads/u1/ORD-9/image_0.png", ObjectPath("u1", "ORD-9", 0, ".png"))
	assert.Equal(t, "uploads/u1/ORD-9/image_2.jpg", ObjectPath("u1", "ORD-9", 2, ".jpg"))
}
