package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockalert_backend/config"
	"stockalert_backend/middleware"
	"stockalert_backend/models"
	"stockalert_backend/routes"
	"stockalert_backend/scheduler"
	"stockalert_backend/services/archive"
	"stockalert_backend/services/notify"
	"stockalert_backend/services/quote"
	"stockalert_backend/services/stream"
	"stockalert_backend/services/tracker"
	"stockalert_backend/store"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("==============================================")
	log.Println("  Stock Alert Backend - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	watchlist, err := config.LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		log.Fatalf("Failed to load watchlist: %v", err)
	}
	log.Printf("Watchlist loaded: %d tickers, %d accounts", len(watchlist.Tickers), len(watchlist.Accounts))

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	log.Println("Running database migrations...")
	if err := runMigrations(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if err := models.SeedDefaultAdminUser(db, cfg.AdminPassword); err != nil {
		log.Printf("Warning: Could not seed admin user: %v", err)
	}

	// Wire the tracker and its collaborators
	alertStore := store.NewAlertStore(db)
	quoteClient := quote.NewClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, watchlist.Defaults.MaxQuoteCallsPerMin)
	notifier := notify.NewPushNotifier(cfg.PushAPIURL, watchlist.AccountKeys())
	rotationQueue := tracker.NewRotationQueue(watchlist.Symbols())
	marketClock := tracker.NewMarketClock()

	trk := tracker.NewTracker(rotationQueue, quoteClient, alertStore, notifier, watchlist)

	hub := stream.NewHub()
	go hub.Run()
	trk.SetBroadcaster(hub)

	alertArchive, err := archive.NewMongoArchive(cfg.MongoURI)
	if err != nil {
		log.Printf("MongoDB archive unavailable: %v", err)
	} else {
		trk.SetArchiver(alertArchive)
	}

	jobScheduler := scheduler.NewScheduler(trk, alertStore, marketClock, watchlist.Defaults.MaxQuoteCallsPerMin)
	jobScheduler.Start()

	// Control-plane HTTP server
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestLogger())

	routes.SetupRoutes(router, db, alertStore, trk, marketClock, hub)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, jobScheduler, hub, alertArchive)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateAlertModels(db); err != nil {
		return err
	}
	if err := models.MigrateAdminModels(db); err != nil {
		return err
	}
	return nil
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler,
	hub *stream.Hub, alertArchive *archive.MongoArchive) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	if jobScheduler != nil {
		jobScheduler.Stop()
	}
	if hub != nil {
		hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if alertArchive != nil {
		alertArchive.Close()
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
