package scheduler

import (
	"log"
	"time"

	"stockalert_backend/services/tracker"
	"stockalert_backend/store"

	"github.com/go-co-op/gocron"
)

// Up to this many rotation ticks may be in flight at once. A slow quote
// call must not stall the whole monitor, so overlapping ticks are allowed;
// each pops a different symbol, so they operate on disjoint tickers.
const maxConcurrentTicks = 3

// Scheduler manages the rotation tick and the daily quota reset
type Scheduler struct {
	cron    *gocron.Scheduler
	tracker *tracker.Tracker
	store   *store.AlertStore
	market  *tracker.MarketClock

	tickInterval time.Duration
}

// NewScheduler creates a scheduler. callsPerMinute bounds the quote API
// call rate: the tick interval is derived from it with a one second floor
// and a one second buffer.
func NewScheduler(trk *tracker.Tracker, st *store.AlertStore, market *tracker.MarketClock, callsPerMinute int) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SetMaxConcurrentJobs(maxConcurrentTicks, gocron.RescheduleMode)

	return &Scheduler{
		cron:         cron,
		tracker:      trk,
		store:        st,
		market:       market,
		tickInterval: tickInterval(callsPerMinute),
	}
}

// TickInterval returns the configured rotation interval
func (s *Scheduler) TickInterval() time.Duration {
	return s.tickInterval
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Printf("Starting scheduler with tick interval %v...", s.tickInterval)

	// One rotation step per tick, gated on market hours
	s.cron.Every(s.tickInterval).Do(func() {
		if s.market.Observe() {
			s.tracker.CheckPriceChange()
		}
	})

	// Daily quota reset at midnight
	s.cron.Every(1).Day().At("00:00").Do(func() {
		log.Println("Running daily notification counter reset")
		if err := s.store.ResetAllDaily(); err != nil {
			log.Printf("Daily reset failed: %v", err)
		}
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// tickInterval derives the rotation interval from the quote API budget:
// 60/callsPerMinute seconds with a one second floor plus a small buffer.
func tickInterval(callsPerMinute int) time.Duration {
	if callsPerMinute <= 0 {
		callsPerMinute = 60
	}
	seconds := 60 / callsPerMinute
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds+1) * time.Second
}
