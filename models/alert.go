package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TickerState tracks whether a user has already been alerted on a ticker
// and at which percent change. Rows are created lazily on first read and
// are never deleted.
type TickerState struct {
	ID              uint     `gorm:"primaryKey" json:"id"`
	UserID          string   `gorm:"uniqueIndex:idx_user_ticker;not null" json:"user_id"`
	Ticker          string   `gorm:"uniqueIndex:idx_user_ticker;not null" json:"ticker"`
	Alerted         bool     `gorm:"default:false" json:"alerted"`
	LastAlertThresh *float64 `json:"last_alert_thresh"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserQuota tracks how many notifications a user received today
type UserQuota struct {
	UserID               string     `gorm:"primaryKey" json:"user_id"`
	NotificationCount    int        `gorm:"default:0" json:"notification_count"`
	LastNotificationDate *time.Time `json:"last_notification_date"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NotificationLog stores one row per dispatched price alert
type NotificationLog struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Ticker        string          `gorm:"index;not null" json:"ticker"`
	PercentChange float64         `json:"percent_change"`
	PrevClose     decimal.Decimal `gorm:"type:decimal(15,4)" json:"prev_close"`
	CurrentPrice  decimal.Decimal `gorm:"type:decimal(15,4)" json:"current_price"`
	Message       string          `json:"message"`
	Users         string          `json:"users"` // comma-separated user ids
	DeliveredAt   time.Time       `json:"delivered_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MigrateAlertModels runs database migrations for alert tracking models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TickerState{},
		&UserQuota{},
		&NotificationLog{},
	)
}
