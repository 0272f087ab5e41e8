package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MrEthical07/otpauth"
)

type accountDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"phash"`
	CreatedAt    time.Time `bson:"c"`
}

func (d accountDoc) account() otpauth.Account {
	return otpauth.Account{
		ID:           d.ID,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account otpauth.Account) (otpauth.Account, error) {
	if account.ID == "" || account.Username == "" || account.Email == "" {
		return otpauth.Account{}, otpauth.ErrInvalidInput
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.accounts.InsertOne(ctx, accountDoc{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return otpauth.Account{}, otpauth.ErrDuplicateIdentity
		}
		return otpauth.Account{}, err
	}
	return account, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (otpauth.Account, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) GetByUsername(ctx context.Context, username string) (otpauth.Account, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (otpauth.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (otpauth.Account, error) {
	var doc accountDoc
	if err := s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return otpauth.Account{}, otpauth.ErrAccountNotFound
		}
		return otpauth.Account{}, err
	}
	return doc.account(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.accounts.UpdateByID(ctx, id, bson.M{"$set": bson.M{"phash": passwordHash}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return otpauth.ErrAccountNotFound
	}
	return nil
}
