package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errTokenWindowInvalid = errors.New("token expiry must be after creation")

type tokenDoc struct {
	ID        string    `bson:"_id"`
	AccountID string    `bson:"account"`
	Purpose   string    `bson:"purpose"`
	Digest    []byte    `bson:"digest"`
	CreatedAt time.Time `bson:"c"`
	ExpiresAt time.Time `bson:"exp"`
	Consumed  bool      `bson:"consumed"`
}

func tokenID(purpose, accountID string) string {
	return purpose + ":" + accountID
}

// Replace overwrites the slot document. Two racing upserts on a missing
// slot can collide on _id; the loser retries once as a plain replace.
func (s *Store) Replace(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	createdAt, expiresAt time.Time,
) error {
	if !expiresAt.After(createdAt) {
		return errTokenWindowInvalid
	}

	id := tokenID(purpose, accountID)
	doc := tokenDoc{
		ID:        id,
		AccountID: accountID,
		Purpose:   purpose,
		Digest:    digest[:],
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	opts := options.Replace().SetUpsert(true)

	_, err := s.tokens.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.tokens.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	}
	return err
}

// Consume flips consumed on the slot if digest matches and the slot is live.
func (s *Store) Consume(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	now time.Time,
) (bool, error) {
	filter := bson.M{
		"_id":      tokenID(purpose, accountID),
		"digest":   digest[:],
		"consumed": false,
		"exp":      bson.M{"$gt": now.UTC()},
	}
	update := bson.M{"$set": bson.M{"consumed": true}}

	err := s.tokens.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
