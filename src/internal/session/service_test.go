package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firegate-svc/src/internal/models"
)

// memoryRepository models the store for tests. Consume performs the same
// single compare-and-swap the Mongo repository does, under one mutex, so
// concurrent redemption behaves like the conditional update.
type memoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{sessions: make(map[string]*Session)}
}

func (r *memoryRepository) Insert(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.Token] = &cp
	return nil
}

func (r *memoryRepository) GetByToken(_ context.Context, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepository) Consume(_ context.Context, token, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok || s.Used {
		return false, nil
	}
	s.Used = true
	s.IPAddress = &ip
	return true, nil
}

func (r *memoryRepository) SetObservedIP(_ context.Context, token, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.IPAddress = &ip
	}
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) CountActive(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if now.Before(s.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

func TestCreateSessionRoundTrip(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	before := time.Now()
	created, err := svc.CreateSession(ctx, 1, 2, 3600)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected non-empty token")
	}

	got, err := svc.GetSession(ctx, created.Token)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Used {
		t.Error("fresh session must not be used")
	}
	if got.OwnerID != 1 || got.ChatID != 2 {
		t.Errorf("owner/chat = %d/%d, want 1/2", got.OwnerID, got.ChatID)
	}

	wantExpiry := before.Add(3600 * time.Second)
	diff := got.ExpiresAt.Sub(wantExpiry)
	if diff < -time.Second || diff > time.Second {
		t.Errorf("expiresAt %v not within 1s of now+3600s", got.ExpiresAt)
	}
	if got.ExpiresAt.Sub(got.CreatedAt) != 3600*time.Second {
		t.Errorf("expiresAt-createdAt = %v, want exactly 1h", got.ExpiresAt.Sub(got.CreatedAt))
	}
}

func TestGetSessionDeletesExpired(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	expired := &Session{
		Token:     "expired-token",
		OwnerID:   1,
		ChatID:    1,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := repo.Insert(ctx, expired); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetSession(ctx, "expired-token"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("GetSession on expired token: got %v, want ErrSessionNotFound", err)
	}

	// Lazy delete removed the row.
	if _, err := repo.GetByToken(ctx, "expired-token"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expired session still persisted after read")
	}
}

func TestConsumeIsAtMostOnce(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, 1, 2, 3600)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := svc.Consume(ctx, created.Token, "1.2.3.4")
	if err != nil || !ok {
		t.Fatalf("first Consume = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = svc.Consume(ctx, created.Token, "5.6.7.8")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second Consume must fail")
	}

	got, err := svc.GetSession(ctx, created.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.IPAddress == nil || *got.IPAddress != "1.2.3.4" {
		t.Errorf("stored IP changed by losing consume: %v", got.IPAddress)
	}
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, 1, 2, 3600)
	if err != nil {
		t.Fatal(err)
	}

	const callers = 25
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)

	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			ok, err := svc.Consume(ctx, created.Token, "9.9.9.9")
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			wins <- ok
		}()
	}
	start.Done()
	wg.Wait()
	close(wins)

	var winners int
	for ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners among %d concurrent consumes, want exactly 1", winners, callers)
	}
}

func TestSetObservedIPDoesNotConsume(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, 7, 8, 600)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SetObservedIP(ctx, created.Token, "203.0.113.9"); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetSession(ctx, created.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Used {
		t.Error("SetObservedIP must not mark the session used")
	}
	if got.IPAddress == nil || *got.IPAddress != "203.0.113.9" {
		t.Errorf("observed IP not recorded: %v", got.IPAddress)
	}
}

func TestDeleteExpiredSweep(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	now := time.Now()

	live := &Session{Token: "live", ExpiresAt: now.Add(time.Hour)}
	dead := &Session{Token: "dead", ExpiresAt: now.Add(-time.Minute)}
	repo.Insert(ctx, live)
	repo.Insert(ctx, dead)

	n, err := svc.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d sessions, want 1", n)
	}
	if _, err := repo.GetByToken(ctx, "live"); err != nil {
		t.Error("live session removed by sweep")
	}
}
