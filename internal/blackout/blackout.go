package blackout

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DateLayout is the day key used for blocked days, UTC calendar dates.
const DateLayout = "2006-01-02"

// Blackout blocks every slot of one calendar day.
type Blackout struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Date      string    `bson:"date" json:"date"`
	Reason    string    `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Repository interface {
	Create(ctx context.Context, b Blackout) error
	Delete(ctx context.Context, date string) (bool, error)
	List(ctx context.Context) ([]Blackout, error)
	// Days returns the blocked day keys intersecting [from, to],
	// satisfying the booking side's BlackoutSource.
	Days(ctx context.Context, from, to time.Time) (map[string]bool, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, b Blackout) error {
	_, err := r.col.InsertOne(ctx, b)
	return err
}

func (r *MongoRepository) Delete(ctx context.Context, date string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"date": date})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) List(ctx context.Context) ([]Blackout, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Blackout, 0)
	for cursor.Next(ctx) {
		var b Blackout
		if err := cursor.Decode(&b); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Days(ctx context.Context, from, to time.Time) (map[string]bool, error) {
	query := bson.M{"date": bson.M{
		"$gte": from.UTC().Format(DateLayout),
		"$lte": to.UTC().Format(DateLayout),
	}}

	cursor, err := r.col.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	days := make(map[string]bool)
	for cursor.Next(ctx) {
		var b Blackout
		if err := cursor.Decode(&b); err != nil {
			return nil, err
		}
		days[b.Date] = true
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return days, nil
}
