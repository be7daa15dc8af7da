package coordinator

import (
	"context"
	"errors"

	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/ipnet"
	"firegate-svc/src/internal/models"
	"firegate-svc/src/internal/publisher"
	"firegate-svc/src/internal/session"

	"github.com/sirupsen/logrus"
)

// Coordinator turns redeemed tokens into access grants and drives the
// publisher. Every dependency is passed in at construction; nothing is
// looked up ambiently.
type Coordinator struct {
	sessions  session.Service
	requests  access.Service
	publisher publisher.Publisher
	cfg       *config.AccessConfig
}

func New(sessions session.Service, requests access.Service, pub publisher.Publisher, cfg *config.AccessConfig) *Coordinator {
	return &Coordinator{
		sessions:  sessions,
		requests:  requests,
		publisher: pub,
		cfg:       cfg,
	}
}

// OpenAccess redeems a token into an open grant. All precondition failures
// (unknown, expired or already-used token, duration outside the allow-list)
// come back as the same ErrAccessDenied so a probing caller learns nothing.
//
// The consume happens before the request insert: if the insert then fails,
// the token is burned with no grant, which is detectable in the logs and
// safer than a grant without a consumed token.
func (c *Coordinator) OpenAccess(ctx context.Context, token string, durationSeconds int, observedIP string) (*access.AccessRequest, error) {
	sess, err := c.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			logrus.WithField("token", token).Debug("Redemption of unknown or expired token")
			return nil, models.ErrAccessDenied
		}
		return nil, err
	}

	if !c.isAllowedDuration(durationSeconds) {
		logrus.WithFields(logrus.Fields{
			"token":    token,
			"duration": durationSeconds,
		}).Warn("Redemption with duration outside the allow-list")
		return nil, models.ErrAccessDenied
	}

	consumed, err := c.sessions.Consume(ctx, token, observedIP)
	if err != nil {
		return nil, err
	}
	if !consumed {
		logrus.WithField("token", token).Warn("Redemption lost the consume race, token already used")
		return nil, models.ErrAccessDenied
	}

	request, err := c.requests.CreateRequest(ctx, sess.OwnerID, sess.ChatID, durationSeconds, observedIP)
	if err != nil {
		logrus.WithError(err).WithField("token", token).Error("Token consumed but request creation failed")
		return nil, err
	}

	if ipnet.IsLocal(observedIP) {
		logrus.WithFields(logrus.Fields{
			"request_id": request.ID,
			"ip":         observedIP,
		}).Info("Access opened for excluded IP range, bus event skipped")
	} else if !c.publisher.PublishOpen(observedIP, durationSeconds) {
		// Best-effort: the grant stands, the audit log already has it.
		logrus.WithField("request_id", request.ID).Warn("Open event not delivered to bus")
	}

	return request, nil
}

// CloseAccess revokes a grant. Closing an already-closed grant is a no-op
// that returns the stored record; an unknown id is denied uniformly.
func (c *Coordinator) CloseAccess(ctx context.Context, id string) (*access.AccessRequest, error) {
	request, err := c.requests.CloseRequest(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			return nil, models.ErrAccessDenied
		}
		return nil, err
	}

	if request.IPAddress != nil && !ipnet.IsLocal(*request.IPAddress) {
		if !c.publisher.PublishClose(*request.IPAddress) {
			logrus.WithField("request_id", id).Warn("Close event not delivered to bus")
		}
	}

	return request, nil
}

func (c *Coordinator) isAllowedDuration(durationSeconds int) bool {
	for _, allowed := range c.cfg.AllowedDurations {
		if durationSeconds == allowed {
			return true
		}
	}
	return false
}

// AllowedDurations exposes the configured allow-list to boundary layers.
func (c *Coordinator) AllowedDurations() []int {
	return c.cfg.AllowedDurations
}
