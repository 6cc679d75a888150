package appointment

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, a Appointment) error
	GetByToken(ctx context.Context, token string) (Appointment, error)
	// HasConflict reports whether any live (pending/confirmed)
	// appointment other than excludeID claims one of the given times.
	HasConflict(ctx context.Context, times []time.Time, excludeID string) (bool, error)
	// BookedTimes returns every governing time value of live
	// appointments whose slots have not entirely passed.
	BookedTimes(ctx context.Context, from time.Time) ([]time.Time, error)
	Reschedule(ctx context.Context, id string, sel TimeSelection, now time.Time) (Appointment, error)
	// ConfirmTime pins one of a live pair booking's candidate times.
	// The filter requires t to match the primary or alternate, so a
	// stale or bogus time reports as not found.
	ConfirmTime(ctx context.Context, id string, t, now time.Time) (Appointment, error)
	Cancel(ctx context.Context, id string, now time.Time, refundAmount int64, refundID string) (Appointment, error)
	List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Appointment, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

var liveStatuses = bson.M{"$in": []string{StatusPending, StatusConfirmed}}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, a Appointment) error {
	_, err := r.col.InsertOne(ctx, a)
	return err
}

func (r *MongoRepository) GetByToken(ctx context.Context, token string) (Appointment, error) {
	var a Appointment
	if err := r.col.FindOne(ctx, bson.M{"manageToken": token}).Decode(&a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

func timeFieldClauses(t time.Time) []bson.M {
	return []bson.M{
		{"scheduledTime": t},
		{"primaryTime": t},
		{"alternateTime": t},
		{"confirmedTime": t},
	}
}

func (r *MongoRepository) HasConflict(ctx context.Context, times []time.Time, excludeID string) (bool, error) {
	or := make([]bson.M, 0, len(times)*4)
	for _, t := range times {
		or = append(or, timeFieldClauses(t.UTC())...)
	}

	query := bson.M{
		"status": liveStatuses,
		"$or":    or,
	}
	if excludeID != "" {
		query["_id"] = bson.M{"$ne": excludeID}
	}

	err := r.col.FindOne(ctx, query).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MongoRepository) BookedTimes(ctx context.Context, from time.Time) ([]time.Time, error) {
	query := bson.M{
		"status": liveStatuses,
		"$or": []bson.M{
			{"scheduledTime": bson.M{"$gte": from}},
			{"primaryTime": bson.M{"$gte": from}},
			{"alternateTime": bson.M{"$gte": from}},
			{"confirmedTime": bson.M{"$gte": from}},
		},
	}

	cursor, err := r.col.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	times := make([]time.Time, 0)
	for cursor.Next(ctx) {
		var a Appointment
		if err := cursor.Decode(&a); err != nil {
			return nil, err
		}
		times = append(times, a.GoverningTimes()...)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func (r *MongoRepository) Reschedule(ctx context.Context, id string, sel TimeSelection, now time.Time) (Appointment, error) {
	set := bson.M{
		"status":    StatusConfirmed,
		"updatedAt": now,
	}
	update := bson.M{"$set": set}
	if sel.Mode == ModeSingle {
		set["scheduledTime"] = sel.Scheduled.UTC()
	} else {
		set["primaryTime"] = sel.Primary.UTC()
		set["alternateTime"] = sel.Alternate.UTC()
		update["$unset"] = bson.M{"confirmedTime": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Appointment
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated); err != nil {
		return Appointment{}, err
	}
	return updated, nil
}

func (r *MongoRepository) ConfirmTime(ctx context.Context, id string, t, now time.Time) (Appointment, error) {
	filter := bson.M{
		"_id":    id,
		"status": liveStatuses,
		"$or": []bson.M{
			{"primaryTime": t.UTC()},
			{"alternateTime": t.UTC()},
		},
	}
	update := bson.M{"$set": bson.M{
		"confirmedTime": t.UTC(),
		"status":        StatusConfirmed,
		"updatedAt":     now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Appointment
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return Appointment{}, err
	}
	return updated, nil
}

func (r *MongoRepository) Cancel(ctx context.Context, id string, now time.Time, refundAmount int64, refundID string) (Appointment, error) {
	set := bson.M{
		"status":       StatusCancelled,
		"cancelledAt":  now,
		"refundAmount": refundAmount,
		"updatedAt":    now,
	}
	if refundID != "" {
		set["stripeRefundId"] = refundID
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Appointment
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated); err != nil {
		return Appointment{}, err
	}
	return updated, nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Appointment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, r.filterToBSON(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Appointment, 0)
	for cursor.Next(ctx) {
		var a Appointment
		if err := cursor.Decode(&a); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	return r.col.CountDocuments(ctx, r.filterToBSON(filter))
}

func (r *MongoRepository) filterToBSON(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}
