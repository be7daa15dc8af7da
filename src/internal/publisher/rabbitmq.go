package publisher

import (
	"context"
	"sync"
	"time"

	"firegate-svc/src/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// amqpChannel and amqpConnection carve out the parts of streadway/amqp the
// publisher touches so tests can run against fakes. *amqp.Channel satisfies
// amqpChannel as-is.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
	IsClosed() bool
}

type amqpDialer func(url string) (amqpConnection, error)

type realAMQPConnection struct {
	conn *amqp.Connection
}

func (c *realAMQPConnection) Channel() (amqpChannel, error) {
	return c.conn.Channel()
}

func (c *realAMQPConnection) Close() error {
	return c.conn.Close()
}

func (c *realAMQPConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &realAMQPConnection{conn: conn}, nil
}

// AMQPPublisher implements the durable-queue strategy: every open and close
// event becomes one persistent JSON message on the configured exchange or
// queue. Delivery durability lives in the broker, so no local retry
// bookkeeping is kept.
type AMQPPublisher struct {
	cfg     *config.RabbitMQConfig
	dial    amqpDialer
	mu      sync.Mutex
	conn    amqpConnection
	channel amqpChannel
	state   ConnState
	backoff *backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAMQPPublisher(cfg *config.RabbitMQConfig) *AMQPPublisher {
	return newAMQPPublisher(cfg, dialAMQP, true)
}

func newAMQPPublisher(cfg *config.RabbitMQConfig, dial amqpDialer, startLoops bool) *AMQPPublisher {
	ctx, cancel := context.WithCancel(context.Background())

	p := &AMQPPublisher{
		cfg:  cfg,
		dial: dial,
		backoff: newBackoff(
			cfg.Reconnect.BaseDelaySeconds,
			cfg.Reconnect.MaxDelaySeconds,
			cfg.Reconnect.MaxAttempts,
		),
		ctx:    ctx,
		cancel: cancel,
	}

	if startLoops {
		p.wg.Add(1)
		go p.monitorLoop()
	}

	return p
}

func (p *AMQPPublisher) PublishOpen(ipAddress string, ttlSeconds int) bool {
	logrus.WithFields(logrus.Fields{
		"ip":  ipAddress,
		"ttl": ttlSeconds,
	}).Info("Access event: whitelist open")

	return p.publish(encodeEvent(ttlSeconds))
}

func (p *AMQPPublisher) PublishClose(ipAddress string) bool {
	logrus.WithField("ip", ipAddress).Info("Access event: whitelist close")

	return p.publish(encodeEvent(0))
}

func (p *AMQPPublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Connected && p.conn != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logrus.Warn("Timed out waiting for AMQP publisher loop to stop")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
	logrus.Info("AMQP publisher stopped")
}

func (p *AMQPPublisher) publish(body []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ensureConnectedLocked() {
		return false
	}

	err := p.channel.Publish(
		p.cfg.Exchange,
		p.routingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		logrus.WithError(err).Error("AMQP publish error")
		p.teardownLocked()
		return false
	}

	logrus.WithFields(logrus.Fields{
		"exchange":    p.cfg.Exchange,
		"routing_key": p.routingKey(),
	}).Debug("Event published")
	return true
}

// routingKey resolves where a message goes: the configured key, or the
// queue name when publishing through the default exchange.
func (p *AMQPPublisher) routingKey() string {
	if p.cfg.RoutingKey != "" {
		return p.cfg.RoutingKey
	}
	return p.cfg.Queue
}

func (p *AMQPPublisher) ensureConnectedLocked() bool {
	if p.state == Connected && p.conn != nil && !p.conn.IsClosed() {
		return true
	}

	p.teardownLocked()
	p.state = Connecting

	conn, err := p.dial(p.cfg.Url)
	if err != nil {
		logrus.WithError(err).WithField("url", p.cfg.Url).Warn("AMQP connect failed")
		p.state = Disconnected
		return false
	}

	channel, err := conn.Channel()
	if err != nil {
		logrus.WithError(err).Error("Failed to open AMQP channel")
		conn.Close()
		p.state = Disconnected
		return false
	}

	if err := p.declareTopologyOn(channel); err != nil {
		logrus.WithError(err).Error("Failed to declare AMQP topology")
		channel.Close()
		conn.Close()
		p.state = Disconnected
		return false
	}

	p.conn = conn
	p.channel = channel
	p.state = Connected
	p.backoff.reset()
	logrus.WithField("url", p.cfg.Url).Info("Connected to RabbitMQ")
	return true
}

func (p *AMQPPublisher) declareTopologyOn(channel amqpChannel) error {
	if p.cfg.Exchange != "" {
		err := channel.ExchangeDeclare(
			p.cfg.Exchange,
			p.cfg.ExchangeType,
			p.cfg.Durable,
			p.cfg.AutoDelete,
			p.cfg.Internal,
			p.cfg.NoWait,
			nil,
		)
		if err != nil {
			return err
		}
	}

	if p.cfg.Queue != "" {
		_, err := channel.QueueDeclare(
			p.cfg.Queue,
			p.cfg.Durable,
			p.cfg.AutoDelete,
			false, // exclusive
			p.cfg.NoWait,
			nil,
		)
		if err != nil {
			return err
		}
	}

	if p.cfg.Exchange != "" && p.cfg.RoutingKey != "" && p.cfg.Queue != "" {
		return channel.QueueBind(p.cfg.Queue, p.cfg.RoutingKey, p.cfg.Exchange, p.cfg.NoWait, nil)
	}

	return nil
}

func (p *AMQPPublisher) teardownLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.state = Disconnected
}

func (p *AMQPPublisher) monitorLoop() {
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

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(delay):
		}

		p.mu.Lock()
		if p.ensureConnectedLocked() {
			logrus.Info("RabbitMQ reconnected by keep-alive loop")
		} else if p.backoff.exhausted() {
			logrus.WithField("attempts", p.cfg.Reconnect.MaxAttempts).
				Warn("AMQP reconnect attempts exhausted, waiting for next publish")
		}
		p.mu.Unlock()
	}
}
