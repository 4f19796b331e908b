package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/repository"
)

const (
	usersCollection = "users"

	emailIndex    = "email_unique"
	usernameIndex = "username_unique"
)

type userDocument struct {
	ID             string    `bson:"_id"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email"`
	HashedPassword string    `bson:"passwordHash"`
	Avatar         string    `bson:"avatar"`
	RefreshTokens  []string  `bson:"refreshTokens"`
}

func (d userDocument) toModel() (models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("db error: malformed user id %q: %w", d.ID, err)
	}

	return models.User{
		ID:             id,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		Username:       d.Username,
		Email:          d.Email,
		HashedPassword: d.HashedPassword,
		Avatar:         d.Avatar,
		RefreshTokens:  d.RefreshTokens,
	}, nil
}

type UserRepo struct {
	users *mongo.Collection
}

var _ repository.UserRepo = (*UserRepo)(nil)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{users: db.Collection(usersCollection)}
}

// Create unique indexes; safe to call on every start
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Username:       arg.Username,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		Avatar:         arg.Avatar,
		RefreshTokens:  []string{},
	}

	_, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		return models.User{}, duplicateError(err)
	}

	return doc.toModel()
}

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if upd.Username != nil {
		set = append(set, bson.E{Key: "username", Value: *upd.Username})
	}
	if upd.Avatar != nil {
		set = append(set, bson.E{Key: "avatar", Value: *upd.Avatar})
	}

	var doc userDocument
	err := r.users.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, duplicateError(err)
	}
}

func (r *UserRepo) AppendRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := r.users.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "refreshTokens", Value: token}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// $pull and $push can't touch one field in a single update, so the pipeline form is used:
// filter the old token out and append the new one in one document write
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, oldToken string, newToken string) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "refreshTokens", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: "$refreshTokens"},
					{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", literal(oldToken)}}}},
				}}},
				bson.A{literal(newToken)},
			}}}},
			{Key: "updatedAt", Value: "$$NOW"},
		}}},
	}

	res, err := r.users.UpdateOne(ctx, tokenFilter(id, oldToken), pipeline)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.tokenMissError(ctx, id)
	}
	return nil
}

func (r *UserRepo) RemoveRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := r.users.UpdateOne(
		ctx,
		tokenFilter(id, token),
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "refreshTokens", Value: token}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.tokenMissError(ctx, id)
	}
	return nil
}

func (r *UserRepo) ClearRefreshTokens(ctx context.Context, id uuid.UUID) error {
	res, err := r.users.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refreshTokens", Value: bson.A{}},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// Keep values starting with '$' from being read as field paths inside a pipeline
func literal(v string) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// Matches the user only while token is still in the list
func tokenFilter(id uuid.UUID, token string) bson.D {
	return bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "refreshTokens", Value: token},
	}
}

func (r *UserRepo) tokenMissError(ctx context.Context, id uuid.UUID) error {
	n, err := r.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return apperrors.ErrUserNotFound
	}
	return apperrors.ErrRefreshTokenNotFound
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.D) (models.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
}

// Duplicate key errors carry the violated index name in the message
func duplicateError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("db error: %w", err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndex):
		return apperrors.ErrEmailTaken
	case strings.Contains(msg, usernameIndex):
		return apperrors.ErrUsernameTaken
	default:
		return apperrors.ErrUserAlreadyExists
	}
}
