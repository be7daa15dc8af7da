package session

import "time"

// Session is a one-time redemption token handed to a specific owner.
// Used flips false -> true exactly once; an expired session is treated as
// absent even while the row still exists.
type Session struct {
	Token     string    `json:"token" bson:"token"`
	OwnerID   int64     `json:"ownerId" bson:"owner_id"`
	ChatID    int64     `json:"chatId" bson:"chat_id"`
	IPAddress *string   `json:"ipAddress,omitempty" bson:"ip_address,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expires_at"`
	Used      bool      `json:"used" bson:"used"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
