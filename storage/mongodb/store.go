package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDBName               = "otpauth"
	DefaultAccountsCollection   = "accounts"
	DefaultTokensCollectionName = "tokens"
	defaultConnectTimeout       = 10 * time.Second
)

// Config names the database and collections. Zero fields take the defaults.
type Config struct {
	DBName             string
	AccountsCollection string
	TokensCollection   string
}

// Store implements otpauth.AccountStore and otpauth.TokenStore.
// It is safe for concurrent use.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	tokens   *mongo.Collection
}

// New wraps an existing client. It panics if client is nil.
func New(client *mongo.Client, cfg Config) *Store {
	if client == nil {
		panic("mongo client must be provided")
	}
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	if cfg.AccountsCollection == "" {
		cfg.AccountsCollection = DefaultAccountsCollection
	}
	if cfg.TokensCollection == "" {
		cfg.TokensCollection = DefaultTokensCollectionName
	}

	db := client.Database(cfg.DBName)
	return &Store{
		client:   client,
		accounts: db.Collection(cfg.AccountsCollection),
		tokens:   db.Collection(cfg.TokensCollection),
	}
}

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return New(client, cfg), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureSchema creates the unique and TTL indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("account indexes: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "exp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("token indexes: %w", err)
	}
	return nil
}
