package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a wallet-authenticated dashboard user.
type User struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	WalletAddress string     `gorm:"uniqueIndex;size:42;not null" json:"wallet_address"` // lowercase hex
	Username      string     `gorm:"uniqueIndex;size:64;not null" json:"username"`
	TwitterID     string     `gorm:"size:32" json:"twitter_id"`
	DiscordID     string     `gorm:"size:32" json:"discord_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	LastLoginIP   string     `gorm:"size:45" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// BannedUser blocks a user id and wallet from signing in.
// Both columns are unique across the table.
type BannedUser struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	WalletAddress string    `gorm:"uniqueIndex;size:42;not null" json:"wallet_address"`
	Reason        string    `gorm:"size:255" json:"reason"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BannedUser) TableName() string { return "banned_users" }
