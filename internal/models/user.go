package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a storefront account as persisted in users.json.
type User struct {
	ID                 string                `json:"id"`
	Email              string                `json:"email"`
	Name               string                `json:"name"`
	PasswordHash       string                `json:"password_hash"`
	Role               string                `json:"role"`
	CreatedAt          time.Time             `json:"created_at"`
	EmailVerified      bool                  `json:"email_verified"`
	EmailVerifyHash    string                `json:"email_verify_hash,omitempty"`
	EmailVerifyExpires *time.Time            `json:"email_verify_expires,omitempty"`
	ResetHash          string                `json:"reset_hash,omitempty"`
	ResetExpires       *time.Time            `json:"reset_expires,omitempty"`
	TokenVersion       int                   `json:"token_version"`
	Points             int                   `json:"points"`
	RewardsHistory     []RewardsHistoryEntry `json:"rewards_history"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RewardsHistoryEntry is one ledger movement. Delta is positive for earn, negative for redeem.
type RewardsHistoryEntry struct {
	ID     string            `json:"id"`
	At     time.Time         `json:"at"`
	Delta  int               `json:"delta"`
	Reason string            `json:"reason"`
	Extra  map[string]string `json:"extra,omitempty"`
}
