package access

import "time"

// Access request status values. The transition is monotonic: open -> closed.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// AccessRequest is an actual access grant produced by redeeming a token.
type AccessRequest struct {
	ID              string     `json:"id" bson:"id"`
	OwnerID         int64      `json:"ownerId" bson:"owner_id"`
	ChatID          int64      `json:"chatId" bson:"chat_id"`
	IPAddress       *string    `json:"ipAddress,omitempty" bson:"ip_address,omitempty"`
	DurationSeconds int        `json:"durationSeconds" bson:"duration"`
	Status          string     `json:"status" bson:"status"`
	CreatedAt       time.Time  `json:"createdAt" bson:"created_at"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty" bson:"closed_at,omitempty"`
}

// IsExpired reports whether the grant is past its expiry. A nil ExpiresAt
// means an unbounded grant, which never expires.
func IsExpired(r *AccessRequest, now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// IsOpen reports whether the grant is open and not logically expired.
func (r *AccessRequest) IsOpen(now time.Time) bool {
	return r.Status == StatusOpen && !IsExpired(r, now)
}
