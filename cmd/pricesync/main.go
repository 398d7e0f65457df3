package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"stockfarm/internal/database"
	"stockfarm/internal/service"
)

// pricesync fetches the latest close for every known security once and
// exits. Meant for cron; the server runs the same refresh on a timer.
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	repo := database.New(db, logger)
	stooq := service.NewStooqClient(os.Getenv("STOOQ_BASE_URL"))
	updater := service.NewUpdater(repo, stooq, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	updated := updater.RefreshAll(ctx)
	log.Printf("updated quotes for %d securities", updated)
}
