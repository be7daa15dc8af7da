package publisher

import (
	"context"
	"sync"
	"time"

	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// mqttClient is the slice of the paho client the publisher needs. Tests
// substitute a fake.
type mqttClient interface {
	Connect() error
	Publish(topic string, payload []byte, retain bool) error
	IsConnected() bool
	Disconnect()
}

type pahoClient struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

func newPahoClient(cfg *config.MQTTConfig) mqttClient {
	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Url).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(timeout)

	if cfg.Username != "" || cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	return &pahoClient{
		client:  mqtt.NewClient(opts),
		qos:     byte(cfg.QoS),
		timeout: timeout,
	}
}

func (p *pahoClient) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return models.ErrBusTimeout
	}
	return token.Error()
}

func (p *pahoClient) Publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return models.ErrBusTimeout
	}
	return token.Error()
}

func (p *pahoClient) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *pahoClient) Disconnect() {
	p.client.Disconnect(250)
}

// MQTTPublisher implements the retained-signal strategy: each whitelisted
// IP gets a retained {"ttl": n} payload on <prefix>/<ip>, cleared by a
// retained empty payload when the grant ends. Because a clear can itself
// fail, the publisher keeps a local topic -> deadline map and a cleanup
// loop retries due clears until the bus accepts them.
type MQTTPublisher struct {
	cfg     *config.MQTTConfig
	mu      sync.Mutex
	client  mqttClient
	state   ConnState
	backoff *backoff

	expiryMu sync.Mutex
	expiry   map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMQTTPublisher(cfg *config.MQTTConfig) *MQTTPublisher {
	return newMQTTPublisher(cfg, newPahoClient(cfg), true)
}

func newMQTTPublisher(cfg *config.MQTTConfig, client mqttClient, startLoops bool) *MQTTPublisher {
	ctx, cancel := context.WithCancel(context.Background())

	p := &MQTTPublisher{
		cfg:    cfg,
		client: client,
		state:  Disconnected,
		backoff: newBackoff(
			cfg.Reconnect.BaseDelaySeconds,
			cfg.Reconnect.MaxDelaySeconds,
			cfg.Reconnect.MaxAttempts,
		),
		expiry: make(map[string]time.Time),
		ctx:    ctx,
		cancel: cancel,
	}

	if startLoops {
		p.wg.Add(2)
		go p.monitorLoop()
		go p.cleanupLoop()
	}

	return p
}

func (p *MQTTPublisher) PublishOpen(ipAddress string, ttlSeconds int) bool {
	topic := p.topic(ipAddress)

	logrus.WithFields(logrus.Fields{
		"topic": topic,
		"ttl":   ttlSeconds,
	}).Info("Access event: whitelist open")

	if ttlSeconds <= 0 {
		logrus.WithField("ttl", ttlSeconds).Warn("Refusing to publish non-positive TTL")
		return false
	}

	if !p.publish(topic, encodeEvent(ttlSeconds), true) {
		logrus.WithField("topic", topic).Warn("Failed to publish whitelist open")
		return false
	}

	p.scheduleClear(topic, time.Now().Add(time.Duration(ttlSeconds)*time.Second))
	return true
}

func (p *MQTTPublisher) PublishClose(ipAddress string) bool {
	topic := p.topic(ipAddress)

	logrus.WithField("topic", topic).Info("Access event: whitelist clear")

	if !p.publish(topic, nil, true) {
		logrus.WithField("topic", topic).Warn("Failed to publish whitelist clear, cleanup loop will retry")
		// Make the cleanup loop pick the topic up immediately.
		p.scheduleClear(topic, time.Now())
		return false
	}

	p.expiryMu.Lock()
	delete(p.expiry, topic)
	p.expiryMu.Unlock()
	return true
}

func (p *MQTTPublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Connected && p.client.IsConnected()
}

func (p *MQTTPublisher) Close() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logrus.Warn("Timed out waiting for MQTT publisher loops to stop")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Disconnect()
	p.state = Disconnected
	logrus.Info("MQTT publisher stopped")
}

func (p *MQTTPublisher) topic(ipAddress string) string {
	return p.cfg.TopicPrefix + "/" + ipAddress
}

// publish holds the connection lock for the whole connect-and-send so
// concurrent callers never interleave on the client.
func (p *MQTTPublisher) publish(topic string, payload []byte, retain bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ensureConnectedLocked() {
		return false
	}

	if err := p.client.Publish(topic, payload, retain); err != nil {
		logrus.WithError(err).WithField("topic", topic).Error("MQTT publish error")
		p.state = Disconnected
		return false
	}
	return true
}

func (p *MQTTPublisher) ensureConnectedLocked() bool {
	if p.state == Connected && p.client.IsConnected() {
		return true
	}

	p.state = Connecting
	if err := p.client.Connect(); err != nil {
		logrus.WithError(err).WithField("url", p.cfg.Url).Warn("MQTT connect failed")
		p.state = Disconnected
		return false
	}

	p.state = Connected
	p.backoff.reset()
	logrus.WithField("url", p.cfg.Url).Info("MQTT connected")
	return true
}

// monitorLoop is the keep-alive task: it re-establishes a dropped
// connection with exponential backoff, and goes idle once an episode is
// exhausted until the next explicit publish re-arms the state.
func (p *MQTTPublisher) monitorLoop() {
	defer p.wg.Done()

	interval := time.Duration(p.cfg.KeepAliveSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		if p.Healthy() {
			continue
		}

		p.mu.Lock()
		p.state = Disconnected
		delay, ok := p.backoff.next()
		p.mu.Unlock()
		if !ok {
			continue
		}

		// Sleep outside the lock so publishes are not held up.
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(delay):
		}

		p.mu.Lock()
		if p.ensureConnectedLocked() {
			logrus.Info("MQTT reconnected by keep-alive loop")
		} else if p.backoff.exhausted() {
			logrus.WithField("attempts", p.cfg.Reconnect.MaxAttempts).
				Warn("MQTT reconnect attempts exhausted, waiting for next publish")
		}
		p.mu.Unlock()
	}
}

// cleanupLoop clears retained payloads whose TTL has elapsed. A failed
// clear is rescheduled a short while out instead of being dropped, so
// clearing is eventual as long as the bus comes back.
func (p *MQTTPublisher) cleanupLoop() {
	defer p.wg.Done()

	interval := time.Duration(p.cfg.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.clearDueTopics(time.Now())
		}
	}
}

func (p *MQTTPublisher) clearDueTopics(now time.Time) {
	p.expiryMu.Lock()
	var due []string
	for topic, deadline := range p.expiry {
		if !now.Before(deadline) {
			due = append(due, topic)
		}
	}
	p.expiryMu.Unlock()

	retry := time.Duration(p.cfg.ClearRetrySeconds) * time.Second
	if retry <= 0 {
		retry = 10 * time.Second
	}

	for _, topic := range due {
		if p.publish(topic, nil, true) {
			logrus.WithField("topic", topic).Info("Cleared expired whitelist topic")
			p.expiryMu.Lock()
			delete(p.expiry, topic)
			p.expiryMu.Unlock()
		} else {
			logrus.WithField("topic", topic).Warn("Failed to clear expired topic, rescheduling")
			p.scheduleClear(topic, time.Now().Add(retry))
		}
	}
}

func (p *MQTTPublisher) scheduleClear(topic string, deadline time.Time) {
	p.expiryMu.Lock()
	p.expiry[topic] = deadline
	p.expiryMu.Unlock()
}

func (p *MQTTPublisher) pendingClears() int {
	p.expiryMu.Lock()
	defer p.expiryMu.Unlock()
	return len(p.expiry)
}
