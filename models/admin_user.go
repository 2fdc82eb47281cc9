package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminUser represents an operator account for the control-plane API
type AdminUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"default:'admin'" json:"role"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and sets the password for the admin user
func (u *AdminUser) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (u *AdminUser) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// MigrateAdminModels runs database migrations for admin models
func MigrateAdminModels(db *gorm.DB) error {
	return db.AutoMigrate(&AdminUser{})
}

// SeedDefaultAdminUser creates the default admin user if none exists.
// The password comes from ADMIN_PASSWORD; when empty no account is seeded
// and the mutating control-plane endpoints stay unreachable.
func SeedDefaultAdminUser(db *gorm.DB, password string) error {
	if password == "" {
		return nil
	}

	var count int64
	db.Model(&AdminUser{}).Count(&count)
	if count > 0 {
		return nil
	}

	admin := &AdminUser{
		Username: "admin",
		Role:     "admin",
		IsActive: true,
	}
	if err := admin.SetPassword(password); err != nil {
		return err
	}

	return db.Create(admin).Error
}
