package tracker

import (
	"log"
	"sync"
	"time"
)

// MarketState is the observed trading-session state
type MarketState string

const (
	MarketOpen   MarketState = "OPEN"
	MarketClosed MarketState = "CLOSED"
)

// US equity market hours
const (
	marketOpenHour    = 9
	marketOpenMinute  = 30
	marketCloseHour   = 16
	marketCloseMinute = 0
)

// MarketClock is a two-state OPEN/CLOSED machine over US market hours.
// Observe reports whether the market is open and fires the transition
// callback exactly once per state change.
type MarketClock struct {
	mu           sync.Mutex
	loc          *time.Location
	state        MarketState
	observed     bool
	onTransition func(MarketState)
}

// NewMarketClock creates a market clock for US/Eastern trading hours
func NewMarketClock() *MarketClock {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Printf("Could not load market timezone, falling back to UTC: %v", err)
		loc = time.UTC
	}
	return &MarketClock{
		loc: loc,
		onTransition: func(state MarketState) {
			if state == MarketOpen {
				log.Println("Market is now OPEN. Starting stock price checks.")
			} else {
				log.Println("Market is now CLOSED. Stopping stock price checks.")
			}
		},
	}
}

// SetTransitionCallback replaces the state-change callback
func (m *MarketClock) SetTransitionCallback(fn func(MarketState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Observe returns true when the market is currently open
func (m *MarketClock) Observe() bool {
	return m.ObserveAt(time.Now())
}

// ObserveAt evaluates market state at the given instant and fires the
// transition callback if the state changed since the last observation.
func (m *MarketClock) ObserveAt(now time.Time) bool {
	state := m.stateAt(now)

	m.mu.Lock()
	changed := !m.observed || state != m.state
	m.state = state
	m.observed = true
	fn := m.onTransition
	m.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
	return state == MarketOpen
}

// State returns the last observed state
func (m *MarketClock) State() MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.observed {
		return m.stateAt(time.Now())
	}
	return m.state
}

func (m *MarketClock) stateAt(now time.Time) MarketState {
	local := now.In(m.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return MarketClosed
	}

	minutes := local.Hour()*60 + local.Minute()
	open := marketOpenHour*60 + marketOpenMinute
	closeAt := marketCloseHour*60 + marketCloseMinute
	if minutes >= open && minutes <= closeAt {
		return MarketOpen
	}
	return MarketClosed
}
