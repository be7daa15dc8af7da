package whitelist

import "time"

// WhitelistUser is an identity allowed to request access tokens.
type WhitelistUser struct {
	OwnerID       int64     `json:"ownerId" bson:"owner_id"`
	Username      *string   `json:"username,omitempty" bson:"username,omitempty"`
	FirstName     *string   `json:"firstName,omitempty" bson:"first_name,omitempty"`
	LastName      *string   `json:"lastName,omitempty" bson:"last_name,omitempty"`
	AddedByAdmin  int64     `json:"addedByAdmin" bson:"added_by_admin_id"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updated_at"`
}

// AddUserRequest is the admin payload for whitelisting an identity.
type AddUserRequest struct {
	OwnerID   int64   `json:"ownerId" binding:"required"`
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}
