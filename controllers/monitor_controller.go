package controllers

import (
	"net/http"
	"strconv"

	"stockalert_backend/services/tracker"
	"stockalert_backend/store"

	"github.com/gin-gonic/gin"
)

// MonitorController exposes the tracker's state over the control-plane API
type MonitorController struct {
	store   *store.AlertStore
	tracker *tracker.Tracker
	market  *tracker.MarketClock
}

// NewMonitorController creates a monitor controller
func NewMonitorController(st *store.AlertStore, trk *tracker.Tracker, market *tracker.MarketClock) *MonitorController {
	return &MonitorController{
		store:   st,
		tracker: trk,
		market:  market,
	}
}

// GetStatus returns the rotation queue contents and market state
// GET /api/v1/monitor/status
func (mc *MonitorController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"market":       mc.market.State(),
		"queue":        mc.tracker.Queue().Snapshot(),
		"queue_length": mc.tracker.Queue().Len(),
	})
}

// GetTickerStates returns alert state rows, optionally filtered by user
// GET /api/v1/monitor/states?user_id=u1
func (mc *MonitorController) GetTickerStates(c *gin.Context) {
	states, err := mc.store.ListTickerStates(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ticker states"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": states})
}

// GetQuotas returns the per-user daily notification counts
// GET /api/v1/monitor/quotas
func (mc *MonitorController) GetQuotas(c *gin.Context) {
	quotas, err := mc.store.ListQuotas()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quotas"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quotas})
}

// GetHistory returns recent dispatched notifications
// GET /api/v1/monitor/history?limit=50
func (mc *MonitorController) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := mc.store.ListNotifications(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type clearStateRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Ticker string `json:"ticker" binding:"required"`
}

// ClearTickerState disarms the alert state for a (user, ticker) pair
// POST /api/v1/monitor/states/clear
func (mc *MonitorController) ClearTickerState(c *gin.Context) {
	var req clearStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := mc.store.ClearTickerAlerted(req.UserID, req.Ticker); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear ticker state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ResetQuotas forces the daily quota reset sweep
// POST /api/v1/monitor/quotas/reset
func (mc *MonitorController) ResetQuotas(c *gin.Context) {
	if err := mc.store.ResetAllDaily(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset quotas"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// TriggerCheck runs one rotation step immediately
// POST /api/v1/monitor/check
func (mc *MonitorController) TriggerCheck(c *gin.Context) {
	go mc.tracker.CheckPriceChange()
	c.JSON(http.StatusAccepted, gin.H{"status": "check scheduled"})
}
