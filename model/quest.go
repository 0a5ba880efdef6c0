package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestCategory controls quest expiry.
type QuestCategory = string

const (
	QuestCategoryOneOff QuestCategory = "one-off"
	QuestCategoryWeekly QuestCategory = "weekly"
	QuestCategoryOther  QuestCategory = "other"
)

// Platform names the external system a quest is verified against.
type Platform = string

const (
	PlatformX       Platform = "x"
	PlatformDiscord Platform = "discord"
	PlatformOther   Platform = "other"
)

// Quest is a task users complete for points.
// Weekly quests carry Expires = CreatedAt + 24h; all others leave it nil.
type Quest struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:120;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Category    string     `gorm:"size:16;index;not null" json:"category"`
	Platform    string     `gorm:"size:16;not null" json:"platform"`
	TargetID    string     `gorm:"size:64" json:"target_id"` // X account id or Discord guild id
	Link        string     `gorm:"size:255" json:"link"`
	Points      int        `gorm:"default:0" json:"points"`
	Expires     *time.Time `gorm:"index" json:"expires,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (q *Quest) BeforeCreate(*gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// Submission records that a user completed a quest. At most one per (user, quest).
type Submission struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"uniqueIndex:idx_submission_user_quest;size:36;not null" json:"user_id"`
	QuestID   string         `gorm:"uniqueIndex:idx_submission_user_quest;size:36;not null" json:"quest_id"`
	Platform  string         `gorm:"size:16" json:"platform"`
	Evidence  datatypes.JSON `json:"evidence"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// Timer is a named countdown shown on the dashboard.
type Timer struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Timer) TableName() string { return "timer" }
