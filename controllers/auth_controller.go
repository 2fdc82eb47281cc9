package controllers

import (
	"net/http"
	"time"

	"stockalert_backend/middleware"
	"stockalert_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

// AuthController handles admin authentication for the control plane
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an auth controller
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies admin credentials and issues a bearer token
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var admin models.AdminUser
	err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&admin).Error
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !admin.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := middleware.IssueAdminToken(admin.Username, admin.Role, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	now := time.Now()
	ac.db.Model(&admin).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
	})
}
