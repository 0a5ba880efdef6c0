package model

import "time"

// ReferralStatus moves Inactive -> Active on the referred user's first completed quest.
type ReferralStatus = string

const (
	ReferralInactive ReferralStatus = "Inactive"
	ReferralActive   ReferralStatus = "Active"
)

// ReferredUser links a referrer to a user who signed up with their username.
type ReferredUser struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string     `gorm:"index:idx_referrer;size:36;not null" json:"user_id"`
	NewUserID   string     `gorm:"uniqueIndex;size:36;not null" json:"new_user_id"`
	Status      string     `gorm:"size:16;default:'Inactive'" json:"status"`
	SignedUp    bool       `gorm:"default:false" json:"signed_up"`
	Username    string     `gorm:"uniqueIndex;size:64;not null" json:"username"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

func (ReferredUser) TableName() string { return "referred_users" }
