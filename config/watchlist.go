package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default limits applied when the watchlist file omits them
const (
	DefaultMaxNotificationsPerDay = 100
	DefaultMaxQuoteCallsPerMin    = 60
)

// ThresholdRule names the users alerted when a ticker's percent change
// crosses Value. Positive values fire on upward moves, negative on downward.
type ThresholdRule struct {
	Value float64  `yaml:"value"`
	Users []string `yaml:"users"`
}

// TickerEntry is one watched symbol with its ordered threshold rules
type TickerEntry struct {
	Symbol     string          `yaml:"symbol"`
	Thresholds []ThresholdRule `yaml:"thresholds"`
}

// Account describes a notification recipient
type Account struct {
	UserID       string  `yaml:"user_id"`
	NotifyThresh float64 `yaml:"notify_thresh"`
	AccountKey   string  `yaml:"account_key"`
	IsAdmin      bool    `yaml:"is_admin"`
}

// Defaults holds the global tracker limits
type Defaults struct {
	MaxNotificationsPerDay int `yaml:"max_notifications_per_day"`
	MaxQuoteCallsPerMin    int `yaml:"max_quote_calls_per_min"`
}

// Watchlist is the tracker configuration loaded once at startup.
// It is read-only after LoadWatchlist returns and safe for concurrent reads.
type Watchlist struct {
	Defaults Defaults      `yaml:"defaults"`
	Accounts []Account     `yaml:"accounts"`
	Tickers  []TickerEntry `yaml:"tickers"`
}

// LoadWatchlist reads and validates the YAML watchlist file
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist file: %w", err)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist file: %w", err)
	}

	if wl.Defaults.MaxNotificationsPerDay <= 0 {
		wl.Defaults.MaxNotificationsPerDay = DefaultMaxNotificationsPerDay
	}
	if wl.Defaults.MaxQuoteCallsPerMin <= 0 {
		wl.Defaults.MaxQuoteCallsPerMin = DefaultMaxQuoteCallsPerMin
	}

	if len(wl.Tickers) == 0 {
		return nil, fmt.Errorf("watchlist has no tickers")
	}

	known := make(map[string]bool, len(wl.Accounts))
	for _, acc := range wl.Accounts {
		if acc.UserID == "" {
			return nil, fmt.Errorf("account with empty user_id")
		}
		known[acc.UserID] = true
	}

	seen := make(map[string]bool, len(wl.Tickers))
	for _, t := range wl.Tickers {
		if t.Symbol == "" {
			return nil, fmt.Errorf("ticker with empty symbol")
		}
		if seen[t.Symbol] {
			return nil, fmt.Errorf("duplicate ticker %s in watchlist", t.Symbol)
		}
		seen[t.Symbol] = true
		for _, rule := range t.Thresholds {
			for _, userID := range rule.Users {
				if !known[userID] {
					return nil, fmt.Errorf("ticker %s references unknown user %s", t.Symbol, userID)
				}
			}
		}
	}

	return &wl, nil
}

// Symbols returns the watched symbols in file order
func (w *Watchlist) Symbols() []string {
	symbols := make([]string, 0, len(w.Tickers))
	for _, t := range w.Tickers {
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// TickerRules returns the threshold rules indexed by symbol
func (w *Watchlist) TickerRules() map[string][]ThresholdRule {
	rules := make(map[string][]ThresholdRule, len(w.Tickers))
	for _, t := range w.Tickers {
		rules[t.Symbol] = t.Thresholds
	}
	return rules
}

// NotifyThresholds returns the per-user hysteresis band indexed by user id
func (w *Watchlist) NotifyThresholds() map[string]float64 {
	thresh := make(map[string]float64, len(w.Accounts))
	for _, acc := range w.Accounts {
		thresh[acc.UserID] = acc.NotifyThresh
	}
	return thresh
}

// AccountKeys returns the push account keys indexed by user id
func (w *Watchlist) AccountKeys() map[string]string {
	keys := make(map[string]string, len(w.Accounts))
	for _, acc := range w.Accounts {
		keys[acc.UserID] = acc.AccountKey
	}
	return keys
}
