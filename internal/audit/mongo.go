package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink persists audit records to the audit_logs and alerts collections
type MongoSink struct {
	events *mongo.Collection
	alerts *mongo.Collection
}

// NewMongoSink creates a Mongo-backed audit sink
func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{
		events: db.Collection("audit_logs"),
		alerts: db.Collection("alerts"),
	}
}

// RecordEvent implements Sink
func (s *MongoSink) RecordEvent(ctx context.Context, entry Entry) error {
	if _, err := s.events.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// RecordAlert implements Sink
func (s *MongoSink) RecordAlert(ctx context.Context, alert Alert) error {
	if _, err := s.alerts.InsertOne(ctx, alert); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

func (q Query) filter(withKind bool) bson.M {
	filter := bson.M{}
	if q.Account != "" {
		filter["account"] = q.Account
	}
	if withKind && q.Kind != "" {
		filter["kind"] = q.Kind
	}
	if q.Action != "" {
		filter["action"] = q.Action
	}

	timeRange := bson.M{}
	if q.From != nil {
		timeRange["$gte"] = *q.From
	}
	if q.To != nil {
		timeRange["$lte"] = *q.To
	}
	if len(timeRange) > 0 {
		filter["created_at"] = timeRange
	}
	return filter
}

func (q Query) findOptions() *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((q.Page - 1) * q.PageSize).
		SetLimit(q.PageSize)
}

// ListEvents implements Sink
func (s *MongoSink) ListEvents(ctx context.Context, q Query) ([]Entry, int64, error) {
	q.Normalize()
	filter := q.filter(true)

	total, err := s.events.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	cursor, err := s.events.Find(ctx, filter, q.findOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode audit events: %w", err)
	}
	return entries, total, nil
}

// ListAlerts implements Sink
func (s *MongoSink) ListAlerts(ctx context.Context, q Query) ([]Alert, int64, error) {
	q.Normalize()
	filter := q.filter(false)

	total, err := s.alerts.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	cursor, err := s.alerts.Find(ctx, filter, q.findOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, 0, fmt.Errorf("decode alerts: %w", err)
	}
	return alerts, total, nil
}
