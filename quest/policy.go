// Package quest owns quest creation, expiry and listing.
package quest

import (
	"time"

	"github.com/nexurateam/nexura-app-sub001/model"
)

// WeeklyLifetime is how long a weekly quest stays open after creation.
// It is a fixed span, not aligned to any calendar boundary.
const WeeklyLifetime = 24 * time.Hour

// ApplyExpiry stamps q with its creation time and category expiry.
// Weekly quests expire WeeklyLifetime after now; other categories never do.
func ApplyExpiry(q *model.Quest, now time.Time) {
	q.CreatedAt = now
	if q.Category == model.QuestCategoryWeekly {
		exp := now.Add(WeeklyLifetime)
		q.Expires = &exp
		return
	}
	q.Expires = nil
}

// FromPayload builds an unsaved quest from a validated payload.
func FromPayload(p Payload, now time.Time) *model.Quest {
	q := &model.Quest{
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Platform:    p.Platform,
		TargetID:    p.TargetID,
		Link:        p.Link,
		Points:      p.Points,
	}
	ApplyExpiry(q, now)
	return q
}

// Active reports whether q is still open at now.
func Active(q *model.Quest, now time.Time) bool {
	return q.Expires == nil || q.Expires.After(now)
}
