package access

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
	Insert(ctx context.Context, request *AccessRequest) error
	GetByID(ctx context.Context, id string) (*AccessRequest, error)
	Close(ctx context.Context, id string, closedAt time.Time) (bool, error)
	ListActiveForOwner(ctx context.Context, ownerID int64, now time.Time) ([]*AccessRequest, error)
	FindExpiredOpen(ctx context.Context, now time.Time) ([]*AccessRequest, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type repository struct {
	collection *mongo.Collection
}

func NewRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.M{"id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"owner_id": 1}},
		{Keys: bson.M{"status": 1}},
		{Keys: bson.M{"expires_at": 1}},
	}
	if _, err := collection.Indexes().CreateMany(context.Background(), indexes); err != nil {
		logrus.WithError(err).Warn("Failed to create access request indexes")
	}

	return &repository{collection: collection}
}

func (r *repository) Insert(ctx context.Context, request *AccessRequest) error {
	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		logrus.WithError(err).WithField("request_id", request.ID).Error("Failed to insert access request")
		return models.ErrDatabaseInsert
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*AccessRequest, error) {
	var request AccessRequest
	filter := bson.M{"id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrRequestNotFound
		}
		logrus.WithError(err).WithField("request_id", id).Error("Failed to get access request")
		return nil, models.ErrDatabaseQuery
	}

	return &request, nil
}

// Close is conditional on status=open, which serializes open -> closed per
// request id: a second close matches no row and reports false.
func (r *repository) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	filter := bson.M{
		"id":     id,
		"status": StatusOpen,
	}

	update := bson.M{
		"$set": bson.M{
			"status":    StatusClosed,
			"closed_at": closedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		logrus.WithError(err).WithField("request_id", id).Error("Failed to close access request")
		return false, models.ErrRequestUpdating
	}

	return result.ModifiedCount == 1, nil
}

func (r *repository) ListActiveForOwner(ctx context.Context, ownerID int64, now time.Time) ([]*AccessRequest, error) {
	filter := bson.M{
		"owner_id": ownerID,
		"status":   StatusOpen,
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": bson.M{"$gt": now}},
		},
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to list active access requests")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var requests []*AccessRequest
	for cursor.Next(ctx) {
		var request AccessRequest
		if err := cursor.Decode(&request); err != nil {
			logrus.WithError(err).Error("Failed to decode access request")
			continue
		}
		requests = append(requests, &request)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return requests, nil
}

func (r *repository) FindExpiredOpen(ctx context.Context, now time.Time) ([]*AccessRequest, error) {
	filter := bson.M{
		"status":     StatusOpen,
		"expires_at": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to find expired access requests")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var requests []*AccessRequest
	for cursor.Next(ctx) {
		var request AccessRequest
		if err := cursor.Decode(&request); err != nil {
			logrus.WithError(err).Error("Failed to decode access request")
			continue
		}
		requests = append(requests, &request)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, models.ErrDatabaseQuery
	}

	return requests, nil
}

func (r *repository) CountByStatus(ctx context.Context, status string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		logrus.WithError(err).WithField("status", status).Error("Failed to count access requests")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}
