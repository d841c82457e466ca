package ledger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// balanceDoc is the MongoDB document shape for one account
type balanceDoc struct {
	AccountID  string    `bson:"_id"`
	BalanceFen int64     `bson:"balance_fen"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// MongoStore is a MongoDB-backed balance store for multi-instance
// deployments. Atomicity rides on single-document update semantics: the
// sufficient-funds check and the debit are one conditional update, so
// concurrent charges against the same account serialize inside the server.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a Mongo-backed ledger on the given database
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection("balances"),
	}
}

// Credit implements Store
func (s *MongoStore) Credit(ctx context.Context, accountID string, amountFen int64) (int64, error) {
	if amountFen <= 0 {
		return 0, ErrInvalidAmount
	}
	accountID = NormalizeAccount(accountID)

	filter := bson.M{"_id": accountID}
	update := bson.M{
		"$inc": bson.M{"balance_fen": amountFen},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc balanceDoc
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return 0, fmt.Errorf("%w: credit %s: %v", ErrStorage, accountID, err)
	}
	return doc.BalanceFen, nil
}

// Balance implements Store
func (s *MongoStore) Balance(ctx context.Context, accountID string) (int64, error) {
	accountID = NormalizeAccount(accountID)

	var doc balanceDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": accountID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: balance %s: %v", ErrStorage, accountID, err)
	}
	return doc.BalanceFen, nil
}

// ReserveAndCharge implements Store. The balance condition is part of the
// update filter, so the debit applies only when funds cover the amount plus
// the minimum reserve.
func (s *MongoStore) ReserveAndCharge(ctx context.Context, accountID string, amountFen, minReserveFen int64) (bool, error) {
	if amountFen <= 0 {
		return false, ErrInvalidAmount
	}
	if minReserveFen < 0 {
		minReserveFen = 0
	}
	accountID = NormalizeAccount(accountID)

	filter := bson.M{
		"_id":         accountID,
		"balance_fen": bson.M{"$gte": amountFen + minReserveFen},
	}
	update := bson.M{
		"$inc": bson.M{"balance_fen": -amountFen},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("%w: charge %s: %v", ErrStorage, accountID, err)
	}
	return result.ModifiedCount == 1, nil
}
