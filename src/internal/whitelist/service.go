package whitelist

import (
	"context"
	"time"

	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Service answers authorization questions for token issuance and admin
// operations. Administrators come from configuration and are always
// authorized; everyone else must be on the stored whitelist.
type Service interface {
	IsAuthorized(ctx context.Context, ownerID int64) (bool, error)
	IsAdmin(ownerID int64) bool
	AddUser(ctx context.Context, req *AddUserRequest, adminID int64) error
	RemoveUser(ctx context.Context, ownerID int64) error
	ListUsers(ctx context.Context) ([]*WhitelistUser, error)
	Count(ctx context.Context) (int64, error)
}

type service struct {
	repository Repository
	adminIDs   []int64
}

func NewService(repository Repository, cfg *config.AccessConfig) Service {
	return &service{
		repository: repository,
		adminIDs:   cfg.AdminIDs,
	}
}

func (s *service) IsAdmin(ownerID int64) bool {
	for _, id := range s.adminIDs {
		if id == ownerID {
			return true
		}
	}
	return false
}

func (s *service) IsAuthorized(ctx context.Context, ownerID int64) (bool, error) {
	if s.IsAdmin(ownerID) {
		return true, nil
	}
	return s.repository.IsWhitelisted(ctx, ownerID)
}

func (s *service) AddUser(ctx context.Context, req *AddUserRequest, adminID int64) error {
	now := time.Now()
	user := &WhitelistUser{
		OwnerID:      req.OwnerID,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		AddedByAdmin: adminID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repository.Upsert(ctx, user); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"owner_id": req.OwnerID,
		"admin_id": adminID,
	}).Info("Whitelist user added")

	return nil
}

func (s *service) RemoveUser(ctx context.Context, ownerID int64) error {
	removed, err := s.repository.Remove(ctx, ownerID)
	if err != nil {
		return err
	}
	if !removed {
		return models.ErrRecordNotFound
	}

	logrus.WithField("owner_id", ownerID).Info("Whitelist user removed")
	return nil
}

func (s *service) ListUsers(ctx context.Context) ([]*WhitelistUser, error) {
	return s.repository.GetAll(ctx)
}

func (s *service) Count(ctx context.Context) (int64, error) {
	return s.repository.Count(ctx)
}
