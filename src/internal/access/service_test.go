package access

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"firegate-svc/src/internal/models"
)

type memoryRepository struct {
	mu       sync.Mutex
	requests map[string]*AccessRequest
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{requests: make(map[string]*AccessRequest)}
}

func (r *memoryRepository) Insert(_ context.Context, req *AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, models.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memoryRepository) Close(_ context.Context, id string, closedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != StatusOpen {
		return false, nil
	}
	req.Status = StatusClosed
	at := closedAt
	req.ClosedAt = &at
	return true, nil
}

func (r *memoryRepository) ListActiveForOwner(_ context.Context, ownerID int64, now time.Time) ([]*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AccessRequest
	for _, req := range r.requests {
		if req.OwnerID == ownerID && req.IsOpen(now) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) FindExpiredOpen(_ context.Context, now time.Time) ([]*AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AccessRequest
	for _, req := range r.requests {
		if req.Status == StatusOpen && IsExpired(req, now) {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepository) CountByStatus(_ context.Context, status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.requests {
		if req.Status == status {
			n++
		}
	}
	return n, nil
}

func TestCreateRequestDerivesExpiry(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	for _, duration := range []int{3600, 10800, 28800, 43200} {
		req, err := svc.CreateRequest(ctx, 1, 2, duration, "8.8.8.8")
		if err != nil {
			t.Fatalf("CreateRequest(%d): %v", duration, err)
		}
		if req.Status != StatusOpen {
			t.Errorf("new request status = %q, want open", req.Status)
		}
		if req.ExpiresAt == nil {
			t.Fatalf("duration %d: nil ExpiresAt", duration)
		}
		if got := req.ExpiresAt.Sub(req.CreatedAt); got != time.Duration(duration)*time.Second {
			t.Errorf("duration %d: expiresAt-createdAt = %v", duration, got)
		}
	}
}

func TestCreateRequestUnbounded(t *testing.T) {
	svc := NewService(newMemoryRepository())

	req, err := svc.CreateRequest(context.Background(), 1, 2, 0, "8.8.8.8")
	if err != nil {
		t.Fatal(err)
	}
	if req.ExpiresAt != nil {
		t.Errorf("zero duration must leave ExpiresAt nil, got %v", req.ExpiresAt)
	}
	if IsExpired(req, time.Now().Add(1000*time.Hour)) {
		t.Error("unbounded request must never expire")
	}
}

func TestCloseRequestIdempotent(t *testing.T) {
	svc := NewService(newMemoryRepository())
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, 1, 2, 3600, "8.8.8.8")
	if err != nil {
		t.Fatal(err)
	}

	first, err := svc.CloseRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if first.Status != StatusClosed || first.ClosedAt == nil {
		t.Fatalf("close did not transition: status=%q closedAt=%v", first.Status, first.ClosedAt)
	}

	second, err := svc.CloseRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !second.ClosedAt.Equal(*first.ClosedAt) {
		t.Errorf("second close moved ClosedAt: %v -> %v", first.ClosedAt, second.ClosedAt)
	}

	if _, err := svc.CloseRequest(ctx, "no-such-id"); !errors.Is(err, models.ErrRequestNotFound) {
		t.Errorf("close of absent id: got %v, want ErrRequestNotFound", err)
	}
}

func TestListActiveExcludesClosedAndExpired(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	now := time.Now()

	open, err := svc.CreateRequest(ctx, 5, 1, 3600, "8.8.8.8")
	if err != nil {
		t.Fatal(err)
	}

	closed, err := svc.CreateRequest(ctx, 5, 1, 3600, "8.8.4.4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CloseRequest(ctx, closed.ID); err != nil {
		t.Fatal(err)
	}

	// Logically expired but not yet swept.
	past := now.Add(-time.Minute)
	repo.Insert(ctx, &AccessRequest{
		ID:        "stale",
		OwnerID:   5,
		Status:    StatusOpen,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: &past,
	})

	// Different owner.
	svc.CreateRequest(ctx, 6, 1, 3600, "1.1.1.1")

	active, err := svc.ListActiveForOwner(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != open.ID {
		t.Fatalf("active list = %+v, want only %s", active, open.ID)
	}
}

func TestListActiveNewestFirst(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	now := time.Now()

	future := now.Add(time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		repo.Insert(ctx, &AccessRequest{
			ID:        id,
			OwnerID:   9,
			Status:    StatusOpen,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			ExpiresAt: &future,
		})
	}

	active, err := svc.ListActiveForOwner(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 3 {
		t.Fatalf("got %d requests, want 3", len(active))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if active[i].ID != want {
			t.Errorf("active[%d] = %s, want %s", i, active[i].ID, want)
		}
	}
}

func TestCloseExpiredSweep(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	repo.Insert(ctx, &AccessRequest{ID: "expired", OwnerID: 1, Status: StatusOpen, ExpiresAt: &past})
	repo.Insert(ctx, &AccessRequest{ID: "live", OwnerID: 1, Status: StatusOpen, ExpiresAt: &future})
	repo.Insert(ctx, &AccessRequest{ID: "unbounded", OwnerID: 1, Status: StatusOpen})

	swept, err := svc.CloseExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 1 || swept[0].ID != "expired" {
		t.Fatalf("swept = %+v, want only the expired request", swept)
	}
	if swept[0].Status != StatusClosed || swept[0].ClosedAt == nil {
		t.Error("swept request not marked closed")
	}

	// Second sweep finds nothing: the transition happened once.
	swept, err = svc.CloseExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 0 {
		t.Errorf("second sweep closed %d requests, want 0", len(swept))
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if IsExpired(&AccessRequest{ExpiresAt: &future}, now) {
		t.Error("future expiry reported expired")
	}
	if !IsExpired(&AccessRequest{ExpiresAt: &past}, now) {
		t.Error("past expiry not reported expired")
	}
	if !IsExpired(&AccessRequest{ExpiresAt: &now}, now) {
		t.Error("expiry exactly now must count as expired")
	}
	if IsExpired(&AccessRequest{}, now) {
		t.Error("nil expiry must never be expired")
	}
}
