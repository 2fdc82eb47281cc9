package archive

import (
	"context"
	"log"
	"time"

	"stockalert_backend/services/tracker"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoDBName     = "stockalerts"
	alertCollection = "notification_history"
	opTimeout       = 10 * time.Second
)

// MongoArchive mirrors dispatched alerts into MongoDB Atlas for long-term
// retention. The archive is best-effort: when no URI is configured or a
// write fails, the tracker keeps running on its SQL history alone.
type MongoArchive struct {
	client   *mongo.Client
	database *mongo.Database
	enabled  bool
}

// NewMongoArchive connects to MongoDB when uri is non-empty. An empty uri
// returns a disabled archive whose methods are no-ops.
func NewMongoArchive(uri string) (*MongoArchive, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, alert archive disabled")
		return &MongoArchive{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB alert archive")
	return &MongoArchive{
		client:   client,
		database: client.Database(mongoDBName),
		enabled:  true,
	}, nil
}

// RecordAlert writes one dispatched alert document
func (a *MongoArchive) RecordAlert(alert tracker.Alert) {
	if !a.enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc := bson.M{
		"ticker":         alert.Ticker,
		"percent_change": alert.PercentChange,
		"prev_close":     alert.PrevClose,
		"current_price":  alert.CurrentPrice,
		"message":        alert.Message,
		"users":          alert.Users,
		"delivered_at":   alert.DeliveredAt,
	}

	_, err := a.database.Collection(alertCollection).InsertOne(ctx, doc)
	if err != nil {
		log.Printf("Failed to archive alert for %s: %v", alert.Ticker, err)
	}
}

// Close disconnects from MongoDB
func (a *MongoArchive) Close() {
	if !a.enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
	}
}
