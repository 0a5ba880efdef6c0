package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexurateam/nexura-app-sub001/apperr"
	"github.com/nexurateam/nexura-app-sub001/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// View is a quest as listed to a user.
type View struct {
	model.Quest
	Completed bool `json:"completed"`
}

// Service persists quests.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates p, applies the category expiry and inserts the quest.
// Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, p Payload) (*model.Quest, error) {
	if err := Validate(&p); err != nil {
		return nil, err
	}
	q := FromPayload(p, s.now().UTC())
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, fmt.Errorf("create quest: %w", err)
	}
	s.logger.Info("quest created",
		zap.String("quest_id", q.ID),
		zap.String("category", q.Category),
		zap.String("platform", q.Platform))
	return q, nil
}

// Get returns the quest with the given id if it has not expired.
func (s *Service) Get(ctx context.Context, id string) (*model.Quest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: quest id required", apperr.ErrValidation)
	}
	var q model.Quest
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: quest %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load quest: %w", err)
	}
	if !Active(&q, s.now()) {
		return nil, fmt.Errorf("%w: quest %s expired", apperr.ErrNotFound, id)
	}
	return &q, nil
}

// ListActive returns open quests, newest first, flagging those userID has
// completed. An empty userID lists without completion flags.
func (s *Service) ListActive(ctx context.Context, userID string) ([]View, error) {
	db := s.db.WithContext(ctx)
	var quests []model.Quest
	if err := db.Where("expires IS NULL OR expires > ?", s.now().UTC()).
		Order("created_at DESC").Find(&quests).Error; err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}

	done := map[string]bool{}
	if userID != "" && len(quests) > 0 {
		ids := make([]string, len(quests))
		for i := range quests {
			ids[i] = quests[i].ID
		}
		var completed []string
		if err := db.Model(&model.Submission{}).
			Where("user_id = ? AND quest_id IN ?", userID, ids).
			Pluck("quest_id", &completed).Error; err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		for _, id := range completed {
			done[id] = true
		}
	}

	views := make([]View, len(quests))
	for i, q := range quests {
		views[i] = View{Quest: q, Completed: done[q.ID]}
	}
	return views, nil
}

// Delete removes a quest regardless of expiry.
func (s *Service) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Quest{})
	if res.Error != nil {
		return fmt.Errorf("delete quest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: quest %s", apperr.ErrNotFound, id)
	}
	return nil
}

// SweepExpired deletes quests whose expiry has passed and reports how many
// went. Submissions are kept.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires IS NOT NULL AND expires <= ?", s.now().UTC()).
		Delete(&model.Quest{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep quests: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired quests swept", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
