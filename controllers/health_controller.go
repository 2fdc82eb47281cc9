package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthController serves liveness and readiness probes
type HealthController struct {
	db *gorm.DB
}

// NewHealthController creates a health controller
func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// Health reports process liveness
// GET /health
func (hc *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Ready reports whether the database is reachable
// GET /ready
func (hc *HealthController) Ready(c *gin.Context) {
	sqlDB, err := hc.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
