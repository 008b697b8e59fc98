package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chilli-trade-ledger/internal/domain/user"
)

const (
	// UserCollectionName is the name of the identity collection in MongoDB
	UserCollectionName = "users"
)

// UserRepository implements the user.Repository interface for MongoDB
type UserRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewUserRepository creates a new MongoDB user repository
func NewUserRepository(logger *slog.Logger, db *mongo.Database) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique email index. Safe to call on every start.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(UserCollectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		r.logger.Error("Failed to create user indexes", "error", err)
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

// Create inserts the user. The unique index turns a second sign-up with the
// same address into ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	collection := r.db.Collection(UserCollectionName)

	_, err := collection.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrDuplicateEmail{Email: u.Email}
		}
		r.logger.Error("Failed to create user",
			"user_id", u.ID.String(),
			"error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id.String())
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	return r.findOne(ctx, bson.M{"email": email}, email)
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, key string) (*user.User, error) {
	collection := r.db.Collection(UserCollectionName)

	var u user.User
	err := collection.FindOne(ctx, filter).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrUserNotFound{Key: key}
		}
		r.logger.Error("Failed to get user",
			"key", key,
			"error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}
