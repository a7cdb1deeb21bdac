package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/priya-sharma/stitchbook-api/middleware"
	"github.com/priya-sharma/stitchbook-api/pkg/apperrors"
	"github.com/priya-sharma/stitchbook-api/store"
	"github.com/priya-sharma/stitchbook-api/syncer"
)

// SyncController exposes the manual sync trigger and the last run's status.
type SyncController struct {
	trigger *syncer.Trigger
	store   *store.LocalStore
}

// NewSyncController creates a SyncController.
func NewSyncController(trigger *syncer.Trigger, s *store.LocalStore) *SyncController {
	return &SyncController{trigger: trigger, store: s}
}

// TriggerSync handles POST /api/v1/sync - a user-initiated sync pass
func (sc *SyncController) TriggerSync(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}
	role, err := middleware.GetRole(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not determine the account role",
			},
		})
		return
	}

	result, err := sc.trigger.TriggerManual(c.Request.Context(), syncer.Session{
		UserID: userID,
		Role:   role,
	})

	switch {
	case errors.Is(err, apperrors.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BACKEND_UNAVAILABLE",
				"message": "No remote backend is configured; running local-only",
			},
		})
		return
	case errors.Is(err, syncer.ErrSyncInFlight), errors.Is(err, syncer.ErrSyncThrottled):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SYNC_DECLINED",
				"message": err.Error(),
			},
		})
		return
	case err != nil:
		respondError(c, err)
		return
	}

	errorList := make([]gin.H, 0, len(result.Errors))
	for _, orderErr := range result.Errors {
		errorList = append(errorList, gin.H{
			"orderId": orderErr.OrderCode,
			"reason":  orderErr.Reason,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"synced":   result.Success,
			"uploaded": result.Uploaded,
			"errors":   errorList,
		},
	})
}

// Status handles GET /api/v1/sync/status - the last persisted sync run
func (sc *SyncController) Status(c *gin.Context) {
	run, found, err := sc.store.LastSyncRun()
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NO_SYNC_YET",
				"message": "No sync pass has run yet",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    run,
	})
}
