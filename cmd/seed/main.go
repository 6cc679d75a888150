package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"meridian-backend/internal/auth"
	"meridian-backend/internal/config"
	"meridian-backend/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds the database: index contracts plus the admin user taken from
// ADMIN_USER / ADMIN_PASSWORD. Safe to run repeatedly.
func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("indexes ensured")

	if cfg.AdminPassword == "" {
		log.Warn("ADMIN_PASSWORD not set, skipping admin user seed")
		return
	}

	if err := seedAdminUser(ctx, cols.Users, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Error("admin user seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("admin user seeded", slog.String("username", cfg.AdminUser))
}

func seedAdminUser(ctx context.Context, users *mongo.Collection, username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"passwordHash": hash,
			"role":         "admin",
		},
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID().Hex(),
			"username":  username,
			"createdAt": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err = users.UpdateOne(ctx, bson.M{"username": username}, update, opts)
	return err
}
