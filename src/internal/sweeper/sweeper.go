package sweeper

import (
	"context"
	"time"

	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/ipnet"
	"firegate-svc/src/internal/publisher"
	"firegate-svc/src/internal/session"

	"github.com/sirupsen/logrus"
)

// Sweeper is the background expiry task: it deletes dead sessions and
// force-closes grants whose time ran out, emitting the close event the
// firewall is waiting for. Per-tick failures are logged and retried on the
// next tick; the sweeper never brings the process down.
type Sweeper struct {
	sessions  session.Service
	requests  access.Service
	publisher publisher.Publisher
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func New(sessions session.Service, requests access.Service, pub publisher.Publisher, cfg *config.SweeperConfig) *Sweeper {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Sweeper{
		sessions:  sessions,
		requests:  requests,
		publisher: pub,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx)
	logrus.WithField("interval", s.interval).Info("Expiry sweeper started")
}

// Stop signals the loop and waits for it up to timeout. A tick stuck on a
// slow store call is abandoned, not awaited forever.
func (s *Sweeper) Stop(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	select {
	case <-s.done:
		logrus.Info("Expiry sweeper stopped")
	case <-time.After(timeout):
		logrus.Warn("Timed out waiting for expiry sweeper to stop")
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick performs one sweep pass. Exported so the boundary can trigger an
// immediate sweep and tests can drive time explicitly.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) {
	removed, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("Sweeper failed to delete expired sessions")
	} else if removed > 0 {
		logrus.WithField("count", removed).Info("Removed expired sessions")
	}

	swept, err := s.requests.CloseExpired(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("Sweeper failed to close expired access requests")
		return
	}

	for _, request := range swept {
		if request.IPAddress == nil {
			continue
		}
		ip := *request.IPAddress
		if ipnet.IsLocal(ip) {
			continue
		}
		if !s.publisher.PublishClose(ip) {
			logrus.WithFields(logrus.Fields{
				"request_id": request.ID,
				"ip":         ip,
			}).Warn("Close event for swept request not delivered to bus")
		}
	}
}
