package access

import (
	"context"
	"time"

	"firegate-svc/src/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service interface {
	CreateRequest(ctx context.Context, ownerID, chatID int64, durationSeconds int, ipAddress string) (*AccessRequest, error)
	GetRequest(ctx context.Context, id string) (*AccessRequest, error)
	CloseRequest(ctx context.Context, id string) (*AccessRequest, error)
	ListActiveForOwner(ctx context.Context, ownerID int64) ([]*AccessRequest, error)
	CloseExpired(ctx context.Context, now time.Time) ([]*AccessRequest, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type service struct {
	repository Repository
}

func NewService(repository Repository) Service {
	return &service{repository: repository}
}

// CreateRequest opens a new grant. durationSeconds <= 0 signals an unbounded
// grant at the storage level: ExpiresAt stays nil. The boundary allow-list
// decides whether unbounded grants are ever reachable.
func (s *service) CreateRequest(ctx context.Context, ownerID, chatID int64, durationSeconds int, ipAddress string) (*AccessRequest, error) {
	now := time.Now()

	request := &AccessRequest{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		ChatID:          chatID,
		DurationSeconds: durationSeconds,
		Status:          StatusOpen,
		CreatedAt:       now,
	}

	if ipAddress != "" {
		request.IPAddress = &ipAddress
	}

	if durationSeconds > 0 {
		expiresAt := now.Add(time.Duration(durationSeconds) * time.Second)
		request.ExpiresAt = &expiresAt
	}

	if err := s.repository.Insert(ctx, request); err != nil {
		return nil, models.ErrRequestCreating
	}

	logrus.WithFields(logrus.Fields{
		"request_id": request.ID,
		"owner_id":   ownerID,
		"ip":         ipAddress,
		"duration":   durationSeconds,
	}).Info("Access request created")

	return request, nil
}

func (s *service) GetRequest(ctx context.Context, id string) (*AccessRequest, error) {
	return s.repository.GetByID(ctx, id)
}

// CloseRequest is idempotent: closing an already-closed request returns the
// stored record unchanged, and absence surfaces as ErrRequestNotFound.
func (s *service) CloseRequest(ctx context.Context, id string) (*AccessRequest, error) {
	closed, err := s.repository.Close(ctx, id, time.Now())
	if err != nil {
		return nil, err
	}

	request, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if closed {
		logrus.WithFields(logrus.Fields{
			"request_id": id,
			"owner_id":   request.OwnerID,
		}).Info("Access request closed")
	}

	return request, nil
}

func (s *service) ListActiveForOwner(ctx context.Context, ownerID int64) ([]*AccessRequest, error) {
	return s.repository.ListActiveForOwner(ctx, ownerID, time.Now())
}

// CloseExpired force-closes every logically expired open request and
// returns the ones this call actually transitioned, so the caller can emit
// exactly one close event per swept grant.
func (s *service) CloseExpired(ctx context.Context, now time.Time) ([]*AccessRequest, error) {
	expired, err := s.repository.FindExpiredOpen(ctx, now)
	if err != nil {
		return nil, err
	}

	var swept []*AccessRequest
	for _, request := range expired {
		closed, err := s.repository.Close(ctx, request.ID, now)
		if err != nil {
			logrus.WithError(err).WithField("request_id", request.ID).Error("Failed to close expired request")
			continue
		}
		if !closed {
			// Raced with an explicit close between find and update.
			continue
		}

		request.Status = StatusClosed
		closedAt := now
		request.ClosedAt = &closedAt
		swept = append(swept, request)
	}

	if len(swept) > 0 {
		logrus.WithField("count", len(swept)).Info("Closed expired access requests")
	}

	return swept, nil
}

func (s *service) CountByStatus(ctx context.Context, status string) (int64, error) {
	return s.repository.CountByStatus(ctx, status)
}
