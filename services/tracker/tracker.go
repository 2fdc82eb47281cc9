package tracker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"stockalert_backend/config"
	"stockalert_backend/models"
	"stockalert_backend/services/quote"

	"github.com/shopspring/decimal"
)

const quoteTimeout = 10 * time.Second

// StateStore is the persistence contract consumed by the tracker
type StateStore interface {
	TickerState(userID, ticker string) (bool, *float64, error)
	SetTickerAlerted(userID, ticker string, thresh float64) error
	NotificationCount(userID string) (int, error)
	IncrementNotificationCount(userID string) error
	RecordNotification(entry *models.NotificationLog) error
}

// QuoteSource fetches the latest quote for a symbol
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (quote.Quote, error)
}

// Dispatcher delivers one message to a set of users
type Dispatcher interface {
	Send(message string, users []string) error
}

// Alert describes one dispatched notification
type Alert struct {
	Ticker        string    `json:"ticker"`
	PercentChange float64   `json:"percent_change"`
	PrevClose     float64   `json:"prev_close"`
	CurrentPrice  float64   `json:"current_price"`
	Message       string    `json:"message"`
	Users         []string  `json:"users"`
	DeliveredAt   time.Time `json:"delivered_at"`
}

// Archiver receives a copy of every dispatched alert
type Archiver interface {
	RecordAlert(alert Alert)
}

// Broadcaster publishes tick readings and alerts to live subscribers
type Broadcaster interface {
	BroadcastReading(symbol string, q quote.Quote)
	BroadcastAlert(alert Alert)
}

// Tracker runs one rotation step per scheduler tick: pop a symbol, fetch
// its quote, evaluate the threshold rules against the alert state and
// quota stores, dispatch at most one notification, and return the symbol
// to the queue. Safe for a small number of overlapping ticks since each
// step pops a different symbol.
type Tracker struct {
	queue            *RotationQueue
	quotes           QuoteSource
	store            StateStore
	notifier         Dispatcher
	rules            map[string][]config.ThresholdRule
	notifyThresh     map[string]float64
	maxNotifications int

	archive Archiver
	stream  Broadcaster
}

// NewTracker creates a tracker over the given collaborators and watchlist
func NewTracker(queue *RotationQueue, quotes QuoteSource, store StateStore,
	notifier Dispatcher, wl *config.Watchlist) *Tracker {
	return &Tracker{
		queue:            queue,
		quotes:           quotes,
		store:            store,
		notifier:         notifier,
		rules:            wl.TickerRules(),
		notifyThresh:     wl.NotifyThresholds(),
		maxNotifications: wl.Defaults.MaxNotificationsPerDay,
	}
}

// SetArchiver attaches an optional alert archive
func (t *Tracker) SetArchiver(a Archiver) {
	t.archive = a
}

// SetBroadcaster attaches an optional live-reading broadcaster
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.stream = b
}

// Queue exposes the rotation queue for status reporting
func (t *Tracker) Queue() *RotationQueue {
	return t.queue
}

// CheckPriceChange runs one rotation step. Errors are logged and degrade
// to "try again on the next rotation"; the popped symbol is always pushed
// back so a failing ticker cannot starve the rotation.
func (t *Tracker) CheckPriceChange() {
	symbol, ok := t.queue.Pop()
	if !ok {
		log.Println("Rotation queue is empty, skipping tick")
		return
	}
	defer t.queue.Push(symbol)

	ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
	defer cancel()

	q, err := t.quotes.Quote(ctx, symbol)
	if err != nil {
		// Missing data is treated as zero observed change: no alerts
		// fire during an upstream outage, the tick does not crash.
		log.Printf("Error fetching price for %s: %v", symbol, err)
		q = quote.Quote{}
	}

	if t.stream != nil {
		t.stream.BroadcastReading(symbol, q)
	}

	rules, ok := t.rules[symbol]
	if !ok {
		log.Printf("No threshold rules configured for %s, skipping", symbol)
		return
	}

	users := t.evaluate(symbol, q, rules)
	if len(users) == 0 {
		return
	}

	message := fmt.Sprintf("%s price has changed by %.2f%% (%s to %s)",
		symbol, q.PercentChange,
		decimal.NewFromFloat(q.PrevClose), decimal.NewFromFloat(q.Current))

	log.Printf("For %s notifying %v", symbol, users)
	if err := t.notifier.Send(message, users); err != nil {
		// Nothing is recorded on dispatch failure, the next rotation
		// of this symbol replays the identical evaluation.
		log.Printf("Failed to send notification for %s: %v", symbol, err)
		return
	}

	deliveredAt := time.Now()
	for _, userID := range users {
		if err := t.store.SetTickerAlerted(userID, symbol, q.PercentChange); err != nil {
			log.Printf("Failed to arm alert state for %s/%s: %v", userID, symbol, err)
		}
		if err := t.store.IncrementNotificationCount(userID); err != nil {
			log.Printf("Failed to increment notification count for %s: %v", userID, err)
		}
	}

	alert := Alert{
		Ticker:        symbol,
		PercentChange: q.PercentChange,
		PrevClose:     q.PrevClose,
		CurrentPrice:  q.Current,
		Message:       message,
		Users:         users,
		DeliveredAt:   deliveredAt,
	}
	t.recordAlert(alert)
}

// evaluate returns the deduplicated, sorted set of users to notify for
// this reading.
func (t *Tracker) evaluate(symbol string, q quote.Quote, rules []config.ThresholdRule) []string {
	notifySet := make(map[string]bool)
	noticed := make(map[string]bool)

	for _, rule := range rules {
		// Directionality filter: positive thresholds fire on rises,
		// negative on falls. A zero threshold takes the upward branch.
		if rule.Value >= 0 && q.PercentChange < rule.Value {
			continue
		}
		if rule.Value < 0 && q.PercentChange > rule.Value {
			continue
		}

		for _, userID := range rule.Users {
			count, err := t.store.NotificationCount(userID)
			if err != nil {
				log.Printf("Failed to read notification count for %s: %v", userID, err)
				continue
			}

			if !noticed[userID] && float64(count) == 0.9*float64(t.maxNotifications) {
				noticed[userID] = true
				notice := fmt.Sprintf("User %s has almost reached the daily notification limit.", userID)
				log.Print(notice)
				if err := t.notifier.Send(notice, []string{userID}); err != nil {
					log.Printf("Failed to send limit notice to %s: %v", userID, err)
				}
			}

			if count >= t.maxNotifications {
				log.Printf("User %s has reached the daily notification limit.", userID)
				continue
			}

			alerted, lastThresh, err := t.store.TickerState(userID, symbol)
			if err != nil {
				log.Printf("Failed to read ticker state for %s/%s: %v", userID, symbol, err)
				continue
			}

			// Hysteresis: once armed, require an additional move of
			// the user's notify threshold beyond the last alert point,
			// in the rule's direction, before re-alerting.
			if alerted && lastThresh != nil {
				band := t.notifyThresh[userID]
				if rule.Value < 0 {
					if q.PercentChange > *lastThresh-band {
						continue
					}
				} else {
					if q.PercentChange < *lastThresh+band {
						continue
					}
				}
			}

			notifySet[userID] = true
		}
	}

	users := make([]string, 0, len(notifySet))
	for userID := range notifySet {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (t *Tracker) recordAlert(alert Alert) {
	entry := &models.NotificationLog{
		Ticker:        alert.Ticker,
		PercentChange: alert.PercentChange,
		PrevClose:     decimal.NewFromFloat(alert.PrevClose),
		CurrentPrice:  decimal.NewFromFloat(alert.CurrentPrice),
		Message:       alert.Message,
		Users:         strings.Join(alert.Users, ","),
		DeliveredAt:   alert.DeliveredAt,
	}
	if err := t.store.RecordNotification(entry); err != nil {
		log.Printf("Failed to record notification history for %s: %v", alert.Ticker, err)
	}

	if t.archive != nil {
		t.archive.RecordAlert(alert)
	}
	if t.stream != nil {
		t.stream.BroadcastAlert(alert)
	}
}
