package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Collections struct {
	Appointments    *mongo.Collection
	ContactMessages *mongo.Collection
	BlackoutDates   *mongo.Collection
	Users           *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *Collections, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}

	db := client.Database(dbName)

	cols := &Collections{
		Appointments:    db.Collection("appointments"),
		ContactMessages: db.Collection("contact_messages"),
		BlackoutDates:   db.Collection("blackout_dates"),
		Users:           db.Collection("users"),
	}

	return client, cols, nil
}

// EnsureIndexes creates the index contracts the booking flow relies on:
// a unique manageToken (the bearer credential for self-service links)
// and time+status lookup indexes for conflict and availability queries.
// Slot uniqueness itself is not index-enforced; a partial unique index
// cannot express "status in {pending, confirmed}", so the booking
// service serializes conflict checks instead.
func EnsureIndexes(ctx context.Context, cols *Collections) error {
	indexTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := cols.Appointments.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "manageToken", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "scheduledTime", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "primaryTime", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "alternateTime", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "confirmedTime", Value: 1}, {Key: "status", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.BlackoutDates.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Users.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}
