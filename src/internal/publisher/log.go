package publisher

import "github.com/sirupsen/logrus"

// LogPublisher is the strategy used when the bus is disabled: events are
// written to the audit log only and reported as delivered, matching the
// policy that the local log is authoritative.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) PublishOpen(ipAddress string, ttlSeconds int) bool {
	logrus.WithFields(logrus.Fields{
		"ip":  ipAddress,
		"ttl": ttlSeconds,
	}).Info("Access event: whitelist open (bus disabled, logged only)")
	return true
}

func (p *LogPublisher) PublishClose(ipAddress string) bool {
	logrus.WithField("ip", ipAddress).Info("Access event: whitelist close (bus disabled, logged only)")
	return true
}

func (p *LogPublisher) Healthy() bool {
	return true
}

func (p *LogPublisher) Close() {}
