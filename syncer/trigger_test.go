package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
	"github.com/priya-sharma/stitchbook-api/repository"
	"github.com/priya-sharma/stitchbook-api/services"
	"github.com/priya-sharma/stitchbook-api/store"
)

func newTestTrigger(t *testing.T, minInterval time.Duration) (*Trigger, *syncFixture) {
	t.Helper()

	f := newSyncFixture(t)
	return NewTrigger(f.orch, minInterval, logger.NewNopLogger()), f
}

func TestOnAppReadyFiresOnlyOnce(t *testing.T) {
	trigger, f := newTestTrigger(t, 0)
	f.createOrder(t, "ORD-1", 0)

	result, err := trigger.OnAppReady(context.Background(), adminSession())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)

	f.createOrder(t, "ORD-2", 0)

	// Later calls are no-ops even though a pending order exists.
	result, err = trigger.OnAppReady(context.Background(), adminSession())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded)
	assert.Equal(t, 1, f.backend.DocumentCount(OrdersCollection))
}

func TestConnectivityFiresOnOfflineToOnlineOnly(t *testing.T) {
	trigger, f := newTestTrigger(t, 0)
	f.createOrder(t, "ORD-1", 0)

	// Going offline never fires.
	result, err := trigger.OnConnectivityChange(context.Background(), false, adminSession())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded)

	// Coming back online fires.
	result, err = trigger.OnConnectivityChange(context.Background(), true, adminSession())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)

	// A repeated online signal is not a transition.
	f.createOrder(t, "ORD-2", 0)
	result, err = trigger.OnConnectivityChange(context.Background(), true, adminSession())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Uploaded)
}

func TestManualTriggerIsThrottled(t *testing.T) {
	trigger, f := newTestTrigger(t, time.Hour)
	f.createOrder(t, "ORD-1", 0)

	_, err := trigger.TriggerManual(context.Background(), adminSession())
	require.NoError(t, err)

	_, err = trigger.TriggerManual(context.Background(), adminSession())
	assert.ErrorIs(t, err, ErrSyncThrottled)
}

func TestThrottleWindowIsSharedAcrossSources(t *testing.T) {
	trigger, f := newTestTrigger(t, time.Hour)
	f.createOrder(t, "ORD-1", 0)

	_, err := trigger.OnAppReady(context.Background(), adminSession())
	require.NoError(t, err)

	// The initial pass consumed the window for everyone.
	_, err = trigger.TriggerManual(context.Background(), adminSession())
	assert.ErrorIs(t, err, ErrSyncThrottled)

	trigger.OnConnectivityChange(context.Background(), false, adminSession())
	_, err = trigger.OnConnectivityChange(context.Background(), true, adminSession())
	assert.ErrorIs(t, err, ErrSyncThrottled)
}

func TestTriggerDeclinesWhenBackendUnavailable(t *testing.T) {
	log := logger.NewNopLogger()
	notifier := store.NewChangeNotifier(log)
	s, err := store.Open(store.Options{Path: ":memory:"}, notifier, log)
	require.NoError(t, err)
	repo := repository.NewOrderRepository(s, log)
	orch := NewOrchestrator(repo, s, services.NewNoopBackend(), log)
	trigger := NewTrigger(orch, 0, log)

	_, err = trigger.TriggerManual(context.Background(), adminSession())
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}

func TestConcurrentTriggersAreMutuallyExclusive(t *testing.T) {
	trigger, f := newTestTrigger(t, 0)
	for i := 0; i < 20; i++ {
		f.createOrder(t, "ORD-"+string(rune('A'+i)), 0)
	}

	const workers = 8
	results := make(chan error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			<-start
			_, err := trigger.TriggerManual(context.Background(), adminSession())
			results <- err
		}()
	}
	close(start)

	succeeded := 0
	for i := 0; i < workers; i++ {
		err := <-results
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrSyncInFlight)
		}
	}
	// Exactly the winners ran; at least one did.
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 20, f.backend.DocumentCount(OrdersCollection))
}
