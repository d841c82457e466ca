package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/phuhao00/conflux-demo/internal/config"
	"github.com/phuhao00/conflux-demo/internal/ledger"
)

func main() {
	var (
		initDB      = flag.Bool("init", false, "Initialize database with indexes")
		seedData    = flag.Bool("seed", false, "Seed database with test balances")
		healthCheck = flag.Bool("health", false, "Run database health check")
		all         = flag.Bool("all", false, "Run init and seed (full setup)")
	)
	flag.Parse()

	cfg := config.LoadConfig()

	if !*initDB && !*seedData && !*healthCheck && !*all {
		fmt.Println("Database Setup Utility")
		fmt.Println("Usage:")
		fmt.Println("  -init    Initialize database with indexes")
		fmt.Println("  -seed    Seed database with test balances")
		fmt.Println("  -health  Run database health check")
		fmt.Println("  -all     Run full setup (init + seed)")
		fmt.Println()
		fmt.Println("Environment Variables:")
		fmt.Println("  MONGODB_URI       MongoDB connection string")
		fmt.Println("  MONGODB_DATABASE  Database name")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	db := client.Database(cfg.MongoDB.Database)

	if *healthCheck || *all {
		if err := runHealthCheck(ctx, client); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	}

	if *initDB || *all {
		if err := initializeDatabase(ctx, db); err != nil {
			log.Fatalf("Database initialization failed: %v", err)
		}
	}

	if *seedData || *all {
		if err := seedTestData(ctx, db); err != nil {
			log.Fatalf("Data seeding failed: %v", err)
		}
	}

	log.Println("Database setup completed successfully!")
}

// runHealthCheck verifies the primary answers a ping
func runHealthCheck(ctx context.Context, client *mongo.Client) error {
	log.Println("Running database health check...")

	start := time.Now()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	log.Printf("  MongoDB primary reachable (%v)", time.Since(start))
	return nil
}

// initializeDatabase creates the gateway's collections and indexes
func initializeDatabase(ctx context.Context, db *mongo.Database) error {
	log.Println("Initializing database indexes...")

	indexes := map[string][]mongo.IndexModel{
		"audit_logs": {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"alerts": {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"quota_config": {
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
		log.Printf("  Indexed %s (%d indexes)", collection, len(models))
	}
	return nil
}

// seedTestData credits a few development accounts
func seedTestData(ctx context.Context, db *mongo.Database) error {
	log.Println("Seeding test balances...")

	store := ledger.NewMongoStore(db)
	seeds := map[string]int64{
		"0x1111111111111111111111111111111111111111": 100_00,
		"0x2222222222222222222222222222222222222222": 500_00,
	}

	for account, fen := range seeds {
		balance, err := store.Credit(ctx, account, fen)
		if err != nil {
			return fmt.Errorf("seed %s: %w", account, err)
		}
		log.Printf("  %s -> %d fen", account, balance)
	}
	return nil
}
