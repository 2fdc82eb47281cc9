package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port          string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	SQLitePath    string
	JWTSecret     string
	AdminPassword string
	MongoURI      string
	WatchlistFile string
	QuoteAPIURL   string
	QuoteAPIKey   string
	PushAPIURL    string
	Environment   string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:          getEnv("PORT", "8080"),
		DBHost:        getEnv("DB_HOST", ""),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", ""),
		DBName:        getEnv("DB_NAME", "stockalerts"),
		SQLitePath:    getEnv("SQLITE_PATH", "stockalerts.db"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		MongoURI:      getEnv("MONGODB_URI", ""),
		WatchlistFile: getEnv("WATCHLIST_FILE", "config.yaml"),
		QuoteAPIURL:   getEnv("QUOTE_API_URL", "https://finnhub.io/api/v1"),
		QuoteAPIKey:   getEnv("QUOTE_API_KEY", ""),
		PushAPIURL:    getEnv("PUSH_API_URL", "https://alertzy.app/send"),
		Environment:   getEnv("ENVIRONMENT", "development"),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the database connection. Postgres is used when DB_HOST
// is configured, otherwise a local SQLite file keeps the tracker fully
// functional for development and single-host deployments.
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var db *gorm.DB
	var err error

	if AppConfig.DBHost != "" {
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost),
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBName,
		)

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require",
			AppConfig.DBHost,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	} else {
		log.Printf("DB_HOST not set, using SQLite database at %s", AppConfig.SQLitePath)
		db, err = gorm.Open(sqlite.Open(AppConfig.SQLitePath), gormConfig)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
