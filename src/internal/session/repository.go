package session

import (
	"context"
	"errors"
	"time"

	"firegate-svc/src/clients"
	"firegate-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Insert(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Consume(ctx context.Context, token, ipAddress string) (bool, error)
	SetObservedIP(ctx context.Context, token, ipAddress string) error
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	collection *mongo.Collection
}

func NewRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.M{"token": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"expires_at": 1}},
		{Keys: bson.M{"owner_id": 1}},
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
		logrus.WithError(err).Warn("Failed to create session indexes")
	}

	return &repository{collection: collection}
}

func (r *repository) Insert(ctx context.Context, session *Session) error {
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		logrus.WithError(err).WithField("token", session.Token).Error("Failed to insert session")
		return models.ErrDatabaseInsert
	}
	return nil
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	filter := bson.M{"token": token}

	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("token", token).Error("Failed to get session")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

// Consume marks the session used and records the redeeming IP in a single
// conditional update. The filter on used=false makes concurrent redemption
// attempts race on the database, never in application code: exactly one
// caller sees a modified row.
func (r *repository) Consume(ctx context.Context, token, ipAddress string) (bool, error) {
	filter := bson.M{
		"token": token,
		"used":  false,
	}

	update := bson.M{
		"$set": bson.M{
			"used":       true,
			"ip_address": ipAddress,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("token", token).Error("Failed to consume session")
		return false, models.ErrSessionUpdating
	}

	return result.ModifiedCount == 1, nil
}

func (r *repository) SetObservedIP(ctx context.Context, token, ipAddress string) error {
	filter := bson.M{"token": token}
	update := bson.M{"$set": bson.M{"ip_address": ipAddress}}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("token", token).Error("Failed to set observed IP")
		return models.ErrSessionUpdating
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, token string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"token": token}); err != nil {
		logrus.WithError(err).WithField("token", token).Error("Failed to delete session")
		return models.ErrSessionDeleting
	}
	return nil
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete expired sessions")
		return 0, models.ErrSessionDeleting
	}

	return result.DeletedCount, nil
}

func (r *repository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{"expires_at": bson.M{"$gt": now}}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count active sessions")
		return 0, models.ErrDatabaseQuery
	}

	return count, nil
}
