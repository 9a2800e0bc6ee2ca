package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-pricing/internal/catalog"
)

// seeder publishes a catalog file to the Redis snapshot that API replicas restore from.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	file := flag.String("catalog", "testdata/catalog.json", "catalog JSON file")
	ttl := flag.Duration("ttl", 0, "snapshot expiry; zero keeps it until replaced")
	strict := flag.Bool("strict", true, "validate entries before publishing")
	flag.Parse()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to ping Redis: %v", err)
	}

	svc := catalog.NewService(catalog.ServiceConfig{
		Cache:  catalog.NewCache(client, *ttl),
		Strict: *strict,
		Logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	})
	if err := svc.LoadFile(ctx, *file); err != nil {
		log.Fatalf("Failed to publish %s: %v", *file, err)
	}
	log.Printf("Published %d catalog entries to %s", len(svc.Records(ctx)), catalog.SnapshotKey)
}
