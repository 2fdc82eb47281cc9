package store

import (
	"fmt"
	"time"

	"stockalert_backend/models"

	"gorm.io/gorm"
)

// AlertStore persists per-(user, ticker) alert state and per-user daily
// notification quotas. Reads follow an upsert-on-read contract: a missing
// row is created with zero values before it is returned, so first-touch
// semantics are identical for every caller. Each method is independently
// transactional; no cross-call atomicity is provided or required.
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore creates a new alert store
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// TickerState returns (alerted, lastAlertThresh) for a (user, ticker) pair,
// creating the row with alerted=false on first read.
func (s *AlertStore) TickerState(userID, ticker string) (bool, *float64, error) {
	var state models.TickerState
	err := s.db.Where(models.TickerState{UserID: userID, Ticker: ticker}).
		FirstOrCreate(&state).Error
	if err != nil {
		return false, nil, fmt.Errorf("failed to read ticker state for %s/%s: %w", userID, ticker, err)
	}
	return state.Alerted, state.LastAlertThresh, nil
}

// SetTickerAlerted arms the alert state at the given percent change
func (s *AlertStore) SetTickerAlerted(userID, ticker string, thresh float64) error {
	var state models.TickerState
	err := s.db.Where(models.TickerState{UserID: userID, Ticker: ticker}).
		FirstOrCreate(&state).Error
	if err != nil {
		return fmt.Errorf("failed to load ticker state for %s/%s: %w", userID, ticker, err)
	}

	err = s.db.Model(&state).Updates(map[string]interface{}{
		"alerted":           true,
		"last_alert_thresh": thresh,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to arm ticker state for %s/%s: %w", userID, ticker, err)
	}
	return nil
}

// ClearTickerAlerted disarms the alert state for a (user, ticker) pair
func (s *AlertStore) ClearTickerAlerted(userID, ticker string) error {
	var state models.TickerState
	err := s.db.Where(models.TickerState{UserID: userID, Ticker: ticker}).
		FirstOrCreate(&state).Error
	if err != nil {
		return fmt.Errorf("failed to load ticker state for %s/%s: %w", userID, ticker, err)
	}

	err = s.db.Model(&state).Updates(map[string]interface{}{
		"alerted":           false,
		"last_alert_thresh": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to clear ticker state for %s/%s: %w", userID, ticker, err)
	}
	return nil
}

// NotificationCount returns how many notifications the user received today,
// creating the quota row with count 0 on first read.
func (s *AlertStore) NotificationCount(userID string) (int, error) {
	var quota models.UserQuota
	err := s.db.Where(models.UserQuota{UserID: userID}).FirstOrCreate(&quota).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read notification count for %s: %w", userID, err)
	}
	return quota.NotificationCount, nil
}

// IncrementNotificationCount adds one delivered notification for the user.
// The increment runs as a single UPDATE so concurrent ticks touching the
// same user cannot lose counts.
func (s *AlertStore) IncrementNotificationCount(userID string) error {
	var quota models.UserQuota
	err := s.db.Where(models.UserQuota{UserID: userID}).FirstOrCreate(&quota).Error
	if err != nil {
		return fmt.Errorf("failed to load quota for %s: %w", userID, err)
	}

	today := startOfDay(time.Now())
	err = s.db.Model(&models.UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"notification_count":     gorm.Expr("notification_count + 1"),
			"last_notification_date": today,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment notification count for %s: %w", userID, err)
	}
	return nil
}

// ResetAllDaily zeroes the notification count of every user whose last
// notification date is before today. Users already dated today are left
// untouched, so running the sweep more than once per day is harmless.
func (s *AlertStore) ResetAllDaily() error {
	today := startOfDay(time.Now())
	err := s.db.Model(&models.UserQuota{}).
		Where("last_notification_date IS NULL OR last_notification_date < ?", today).
		Updates(map[string]interface{}{
			"notification_count":     0,
			"last_notification_date": today,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return nil
}

// ListTickerStates returns all alert state rows, optionally filtered by user
func (s *AlertStore) ListTickerStates(userID string) ([]models.TickerState, error) {
	var states []models.TickerState
	query := s.db.Order("user_id, ticker")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list ticker states: %w", err)
	}
	return states, nil
}

// ListQuotas returns all quota rows
func (s *AlertStore) ListQuotas() ([]models.UserQuota, error) {
	var quotas []models.UserQuota
	if err := s.db.Order("user_id").Find(&quotas).Error; err != nil {
		return nil, fmt.Errorf("failed to list quotas: %w", err)
	}
	return quotas, nil
}

// RecordNotification appends a delivered alert to the history table
func (s *AlertStore) RecordNotification(entry *models.NotificationLog) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListNotifications returns the most recent history rows
func (s *AlertStore) ListNotifications(limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.NotificationLog
	if err := s.db.Order("delivered_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return entries, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
