package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/session"
)

type stubSessions struct {
	session.Service
	mu      sync.Mutex
	deleted int
}

func (s *stubSessions) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted++
	return 1, nil
}

type stubRequests struct {
	access.Service
	mu    sync.Mutex
	queue [][]*access.AccessRequest
}

func (s *stubRequests) CloseExpired(_ context.Context, _ time.Time) ([]*access.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head, nil
}

type countingPublisher struct {
	mu     sync.Mutex
	closes []string
}

func (p *countingPublisher) PublishOpen(ip string, ttl int) bool { return true }
func (p *countingPublisher) PublishClose(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes = append(p.closes, ip)
	return true
}
func (p *countingPublisher) Healthy() bool { return true }
func (p *countingPublisher) Close()        {}

func strPtr(s string) *string { return &s }

func TestTickClosesExpiredAndPublishesOnce(t *testing.T) {
	expired := &access.AccessRequest{
		ID:        "r1",
		IPAddress: strPtr("8.8.8.8"),
		Status:    access.StatusClosed,
	}

	requests := &stubRequests{queue: [][]*access.AccessRequest{{expired}}}
	sessions := &stubSessions{}
	pub := &countingPublisher{}

	s := New(sessions, requests, pub, &config.SweeperConfig{IntervalSeconds: 30})

	s.Tick(context.Background(), time.Now())
	if len(pub.closes) != 1 || pub.closes[0] != "8.8.8.8" {
		t.Fatalf("closes published = %v, want exactly one for 8.8.8.8", pub.closes)
	}

	// Next tick: nothing left to sweep, no duplicate publish.
	s.Tick(context.Background(), time.Now())
	if len(pub.closes) != 1 {
		t.Errorf("second tick republished close: %v", pub.closes)
	}
	if sessions.deleted != 2 {
		t.Errorf("session sweep ran %d times, want 2", sessions.deleted)
	}
}

func TestTickSkipsLocalAndMissingIPs(t *testing.T) {
	swept := []*access.AccessRequest{
		{ID: "local", IPAddress: strPtr("192.168.0.10"), Status: access.StatusClosed},
		{ID: "no-ip", Status: access.StatusClosed},
		{ID: "public", IPAddress: strPtr("1.2.3.4"), Status: access.StatusClosed},
	}

	requests := &stubRequests{queue: [][]*access.AccessRequest{swept}}
	pub := &countingPublisher{}
	s := New(&stubSessions{}, requests, pub, &config.SweeperConfig{IntervalSeconds: 30})

	s.Tick(context.Background(), time.Now())
	if len(pub.closes) != 1 || pub.closes[0] != "1.2.3.4" {
		t.Errorf("closes = %v, want only the public IP", pub.closes)
	}
}

func TestStartStop(t *testing.T) {
	requests := &stubRequests{}
	pub := &countingPublisher{}
	s := New(&stubSessions{}, requests, pub, &config.SweeperConfig{IntervalSeconds: 1})

	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop(2 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}
