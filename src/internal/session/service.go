package session

import (
	"context"
	"errors"
	"time"

	"firegate-svc/src/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service interface {
	CreateSession(ctx context.Context, ownerID, chatID int64, ttlSeconds int) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	Consume(ctx context.Context, token, observedIP string) (bool, error)
	SetObservedIP(ctx context.Context, token, ipAddress string) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repository Repository
}

func NewService(repository Repository) Service {
	return &service{repository: repository}
}

// CreateSession issues a fresh one-time token. uuid v4 is drawn from
// crypto/rand, so tokens are not guessable.
func (s *service) CreateSession(ctx context.Context, ownerID, chatID int64, ttlSeconds int) (*Session, error) {
	now := time.Now()

	session := &Session{
		Token:     uuid.NewString(),
		OwnerID:   ownerID,
		ChatID:    chatID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttlSeconds) * time.Second),
		Used:      false,
	}

	if err := s.repository.Insert(ctx, session); err != nil {
		return nil, models.ErrSessionCreating
	}

	logrus.WithFields(logrus.Fields{
		"token":    session.Token,
		"owner_id": ownerID,
		"ttl":      ttlSeconds,
	}).Info("Session created")

	return session, nil
}

// GetSession resolves a token. Expired sessions are deleted on read and
// reported as not found, so callers never observe a stale-but-persisted row.
func (s *service) GetSession(ctx context.Context, token string) (*Session, error) {
	session, err := s.repository.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.IsExpired(time.Now()) {
		if err := s.repository.Delete(ctx, token); err != nil {
			logrus.WithError(err).WithField("token", token).Warn("Failed to delete expired session on read")
		}
		return nil, models.ErrSessionNotFound
	}

	return session, nil
}

func (s *service) Consume(ctx context.Context, token, observedIP string) (bool, error) {
	consumed, err := s.repository.Consume(ctx, token, observedIP)
	if err != nil {
		return false, err
	}

	if consumed {
		logrus.WithFields(logrus.Fields{
			"token": token,
			"ip":    observedIP,
		}).Info("Session consumed")
	}

	return consumed, nil
}

func (s *service) SetObservedIP(ctx context.Context, token, ipAddress string) error {
	return s.repository.SetObservedIP(ctx, token, ipAddress)
}

func (s *service) DeleteSession(ctx context.Context, token string) error {
	err := s.repository.Delete(ctx, token)
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return err
	}
	logrus.WithField("token", token).Debug("Session deleted")
	return nil
}

func (s *service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repository.DeleteExpired(ctx, now)
}

func (s *service) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return s.repository.CountActive(ctx, now)
}
