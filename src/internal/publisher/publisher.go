package publisher

import (
	"encoding/json"
	"time"

	"firegate-svc/src/internal/config"

	"github.com/sirupsen/logrus"
)

// Publisher notifies the external message bus that an IP should be
// whitelisted (open) or un-whitelisted (close). Publish failures are
// reported as false, never as a hard error: the audit log entry written by
// each strategy is authoritative, the bus is best-effort.
type Publisher interface {
	PublishOpen(ipAddress string, ttlSeconds int) bool
	PublishClose(ipAddress string) bool
	Healthy() bool
	Close()
}

// ConnState is the explicit connection state of a publisher. Transitions:
// Disconnected -> Connecting -> Connected, back to Disconnected on any
// send or keep-alive failure.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// New builds the publisher selected by configuration. Unknown modes fall
// back to the log-only strategy so a misconfigured deployment still keeps
// its audit trail.
func New(cfg *config.PublisherConfig) Publisher {
	switch cfg.Mode {
	case "mqtt":
		logrus.Info("Using MQTT retained-signal publisher")
		return NewMQTTPublisher(&cfg.MQTT)
	case "rabbitmq":
		logrus.Info("Using RabbitMQ durable-queue publisher")
		return NewAMQPPublisher(&cfg.RabbitMQ)
	case "log", "":
		logrus.Info("Message bus disabled, events will be logged only")
		return NewLogPublisher()
	default:
		logrus.WithField("mode", cfg.Mode).Warn("Unknown publisher mode, events will be logged only")
		return NewLogPublisher()
	}
}

type eventPayload struct {
	TTL int `json:"ttl"`
}

func encodeEvent(ttlSeconds int) []byte {
	body, err := json.Marshal(eventPayload{TTL: ttlSeconds})
	if err != nil {
		// A struct of one int cannot fail to marshal.
		logrus.WithError(err).Error("Failed to encode event payload")
		return nil
	}
	return body
}

// backoff produces the delay sequence for one reconnection episode:
// base, 2*base, 4*base ... capped at max, for at most maxAttempts tries.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
}

func newBackoff(baseSeconds, maxSeconds, maxAttempts int) *backoff {
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	if maxSeconds <= 0 {
		maxSeconds = 30
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &backoff{
		base:        time.Duration(baseSeconds) * time.Second,
		max:         time.Duration(maxSeconds) * time.Second,
		maxAttempts: maxAttempts,
	}
}

// next returns the delay before the upcoming attempt, or false once the
// episode is exhausted.
func (b *backoff) next() (time.Duration, bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	delay := b.base << b.attempt
	if delay > b.max {
		delay = b.max
	}
	b.attempt++
	return delay, true
}

func (b *backoff) exhausted() bool {
	return b.attempt >= b.maxAttempts
}

func (b *backoff) reset() {
	b.attempt = 0
}
