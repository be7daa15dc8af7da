package whitelist

import (
	"context"
	"errors"

	"firegate-svc/src/clients"
	"firegate-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Upsert(ctx context.Context, user *WhitelistUser) error
	Remove(ctx context.Context, ownerID int64) (bool, error)
	IsWhitelisted(ctx context.Context, ownerID int64) (bool, error)
	GetAll(ctx context.Context) ([]*WhitelistUser, error)
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	collection *mongo.Collection
}

func NewRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)

	index := mongo.IndexModel{
		Keys:    bson.M{"owner_id": 1},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(context.Background(), index); err != nil {
		logrus.WithError(err).Warn("Failed to create whitelist index")
	}

	return &repository{collection: collection}
}

func (r *repository) Upsert(ctx context.Context, user *WhitelistUser) error {
	filter := bson.M{"owner_id": user.OwnerID}

	update := bson.M{
		"$set": bson.M{
			"username":          user.Username,
			"first_name":        user.FirstName,
			"last_name":         user.LastName,
			"added_by_admin_id": user.AddedByAdmin,
			"updated_at":        user.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": user.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		logrus.WithError(err).WithField("owner_id", user.OwnerID).Error("Failed to upsert whitelist user")
		return models.ErrDatabaseUpdate
	}

	return nil
}

func (r *repository) Remove(ctx context.Context, ownerID int64) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to remove whitelist user")
		return false, models.ErrDatabaseDelete
	}
	return result.DeletedCount == 1, nil
}

func (r *repository) IsWhitelisted(ctx context.Context, ownerID int64) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to check whitelist")
		return false, models.ErrDatabaseQuery
	}
	return true, nil
}

func (r *repository) GetAll(ctx context.Context) ([]*WhitelistUser, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to list whitelist users")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var users []*WhitelistUser
	for cursor.Next(ctx) {
		var user WhitelistUser
		if err := cursor.Decode(&user); err != nil {
			logrus.WithError(err).Error("Failed to decode whitelist user")
			continue
		}
		users = append(users, &user)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return users, nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		logrus.WithError(err).Error("Failed to count whitelist users")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}
