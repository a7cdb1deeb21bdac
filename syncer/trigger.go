package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

// Sentinel reasons a trigger declines to start a pass. Neither is an
// application error; sync is best-effort and never blocks order CRUD.
var (
	ErrSyncInFlight  = errors.New("a sync pass is already running")
	ErrSyncThrottled = errors.New("sync was attempted too recently")
)

// Trigger decides when the orchestrator runs. It fires once per process
// after the app is ready, again on every offline-to-online transition, and
// on demand; all sources share one throttle window and passes are mutually
// exclusive.
type Trigger struct {
	orch        *Orchestrator
	minInterval time.Duration
	log         logger.Logger

	mu          sync.Mutex
	inFlight    bool
	lastAttempt time.Time
	initialDone bool
	online      bool
}

// NewTrigger creates a trigger with the given throttle window.
func NewTrigger(orch *Orchestrator, minInterval time.Duration, log logger.Logger) *Trigger {
	return &Trigger{orch: orch, minInterval: minInterval, log: log}
}

// OnAppReady fires the initial pass. Only the first call per process does
// anything; later calls are no-ops.
func (t *Trigger) OnAppReady(ctx context.Context, sess Session) (Result, error) {
	t.mu.Lock()
	if t.initialDone {
		t.mu.Unlock()
		return Result{}, nil
	}
	t.initialDone = true
	t.online = true
	t.mu.Unlock()

	return t.tryRun(ctx, sess)
}

// OnConnectivityChange observes the connectivity signal and fires a pass on
// every offline-to-online transition.
func (t *Trigger) OnConnectivityChange(ctx context.Context, online bool, sess Session) (Result, error) {
	t.mu.Lock()
	wasOnline := t.online
	t.online = online
	t.mu.Unlock()

	if !online || wasOnline {
		return Result{}, nil
	}
	return t.tryRun(ctx, sess)
}

// TriggerManual fires a user-initiated pass, subject to the same throttle
// and mutual exclusion as the automatic triggers.
func (t *Trigger) TriggerManual(ctx context.Context, sess Session) (Result, error) {
	return t.tryRun(ctx, sess)
}

func (t *Trigger) tryRun(ctx context.Context, sess Session) (Result, error) {
	if !t.orch.Available() {
		return Result{}, apperrors.ErrBackendUnavailable
	}

	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return Result{}, ErrSyncInFlight
	}
	if !t.lastAttempt.IsZero() && time.Since(t.lastAttempt) < t.minInterval {
		t.mu.Unlock()
		return Result{}, ErrSyncThrottled
	}
	t.inFlight = true
	t.lastAttempt = time.Now()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
	}()

	t.log.Info("Starting sync pass", "user", sess.UserID, "role", sess.Role)
	result, err := t.orch.RunPass(ctx, sess)
	if err != nil {
		t.log.Error("Sync pass aborted", "error", err)
		return result, err
	}

	t.log.Info("Sync pass finished",
		"uploaded", result.Uploaded,
		"errors", len(result.Errors),
		"success", result.Success)
	return result, nil
}
