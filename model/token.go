package model

import "time"

// Token stores a user's Discord OAuth credentials. One row per user;
// saves upsert on UserID so the latest pair wins.
type Token struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID       string    `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	TokenType    string    `gorm:"size:16" json:"-"`
	Expiry       time.Time `json:"expiry"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Token) TableName() string { return "tokens" }
