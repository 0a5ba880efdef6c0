// Package verify checks that a user completed an externally tracked quest
// action and records the completion once.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nexurateam/nexura-app-sub001/apperr"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"github.com/nexurateam/nexura-app-sub001/tokenbox"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateTTL bounds how long a Discord authorize link stays usable.
const StateTTL = 10 * time.Minute

// FollowingLister returns the X account ids a user follows.
type FollowingLister interface {
	FollowingIDs(ctx context.Context, twitterUserID string) ([]string, error)
}

// DiscordProvider is the Discord OAuth and user API surface used here.
// Methods taking a token return the token actually used, which differs from
// the input after a refresh.
type DiscordProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CurrentUserID(ctx context.Context, tok *oauth2.Token) (string, *oauth2.Token, error)
	GuildIDs(ctx context.Context, tok *oauth2.Token) ([]string, *oauth2.Token, error)
}

// Result is the outcome of a check. Completed false with a nil error means
// the user has not done the action yet.
type Result struct {
	Completed   bool   `json:"completed"`
	AlreadyDone bool   `json:"already_done,omitempty"`
	QuestID     string `json:"quest_id"`
	Points      int    `json:"points,omitempty"`
}

type Service struct {
	db      *gorm.DB
	kv      cache.Cache
	facade  *cache.JSON
	quests  *quest.Service
	x       FollowingLister
	discord DiscordProvider
	box     *tokenbox.Box
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(
	db *gorm.DB,
	kv cache.Cache,
	quests *quest.Service,
	x FollowingLister,
	discord DiscordProvider,
	box *tokenbox.Box,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:      db,
		kv:      kv,
		facade:  cache.NewJSON(kv),
		quests:  quests,
		x:       x,
		discord: discord,
		box:     box,
		logger:  logger,
		now:     time.Now,
	}
}

func followingKey(twitterID string) string { return "x:following:" + twitterID }
func guildsKey(userID string) string       { return "discord:guilds:" + userID }
func stateKey(state string) string         { return "discord:state:" + state }

// CheckX verifies the user follows the quest's target X account.
func (s *Service) CheckX(ctx context.Context, userID, questID string) (Result, error) {
	q, user, done, err := s.prepare(ctx, userID, questID, model.PlatformX)
	if err != nil || done {
		return Result{Completed: done, AlreadyDone: done, QuestID: questID}, err
	}
	if user.TwitterID == "" {
		return Result{}, fmt.Errorf("%w: link an X account first", apperr.ErrValidation)
	}

	key := followingKey(user.TwitterID)
	ids, err := s.facade.GetStrings(ctx, key)
	if err != nil {
		s.logger.Warn("following cache unreadable", zap.String("key", key), zap.Error(err))
		ids = nil
	}
	if len(ids) == 0 {
		ids, err = s.x.FollowingIDs(ctx, user.TwitterID)
		if err != nil {
			return Result{}, fmt.Errorf("x lookup: %w", err)
		}
		if err := s.facade.Set(ctx, key, ids); err != nil {
			s.logger.Warn("following cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	if !slices.Contains(ids, q.TargetID) {
		// The list may predate the follow.
		_ = s.facade.Del(ctx, key)
		return Result{QuestID: q.ID}, nil
	}
	res, err := s.complete(ctx, user, q, map[string]any{"twitter_id": user.TwitterID, "target_id": q.TargetID})
	if err == nil {
		// Later checks revalidate against a fresh list.
		_ = s.facade.Del(ctx, key)
	}
	return res, err
}

// CheckDiscord verifies the user is a member of the quest's target guild.
func (s *Service) CheckDiscord(ctx context.Context, userID, questID string) (Result, error) {
	q, user, done, err := s.prepare(ctx, userID, questID, model.PlatformDiscord)
	if err != nil || done {
		return Result{Completed: done, AlreadyDone: done, QuestID: questID}, err
	}

	key := guildsKey(user.ID)
	ids, err := s.facade.GetStrings(ctx, key)
	if err != nil {
		s.logger.Warn("guild cache unreadable", zap.String("key", key), zap.Error(err))
		ids = nil
	}
	if len(ids) == 0 {
		tok, err := s.loadToken(ctx, user.ID)
		if err != nil {
			return Result{}, err
		}
		var used *oauth2.Token
		ids, used, err = s.discord.GuildIDs(ctx, tok)
		if err != nil {
			return Result{}, fmt.Errorf("discord lookup: %w", err)
		}
		if used != nil && used.AccessToken != tok.AccessToken {
			if err := s.saveToken(ctx, user.ID, used); err != nil {
				s.logger.Error("persist refreshed discord token", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
		if err := s.facade.Set(ctx, key, ids); err != nil {
			s.logger.Warn("guild cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	if !slices.Contains(ids, q.TargetID) {
		_ = s.facade.Del(ctx, key)
		return Result{QuestID: q.ID}, nil
	}
	res, err := s.complete(ctx, user, q, map[string]any{"discord_id": user.DiscordID, "guild_id": q.TargetID})
	if err == nil {
		_ = s.facade.Del(ctx, key)
	}
	return res, err
}

// DiscordAuthURL returns the authorize link for userID, bound to a one-time state.
func (s *Service) DiscordAuthURL(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apperr.ErrUnauthorized
	}
	state := uuid.NewString()
	if err := s.kv.Set(ctx, stateKey(state), userID, StateTTL); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return s.discord.AuthCodeURL(state), nil
}

// CompleteDiscordLink exchanges code, records the user's Discord id and
// upserts their token. A non-empty state must have been issued to userID.
func (s *Service) CompleteDiscordLink(ctx context.Context, userID, code, state string) error {
	if userID == "" {
		return apperr.ErrUnauthorized
	}
	if code == "" {
		return fmt.Errorf("%w: missing code", apperr.ErrValidation)
	}
	if state != "" {
		owner, err := s.kv.GetDel(ctx, stateKey(state))
		if cache.IsNotFound(err) || (err == nil && owner != userID) {
			return fmt.Errorf("%w: unknown or foreign state", apperr.ErrValidation)
		}
		if err != nil {
			return fmt.Errorf("read oauth state: %w", err)
		}
	}

	tok, err := s.discord.Exchange(ctx, code)
	if err != nil {
		return err
	}
	discordID, tok, err := s.discord.CurrentUserID(ctx, tok)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).Update("discord_id", discordID).Error; err != nil {
		return fmt.Errorf("store discord id: %w", err)
	}
	if err := s.saveToken(ctx, userID, tok); err != nil {
		return err
	}
	// Guild membership may have changed with the new grant.
	_ = s.facade.Del(ctx, guildsKey(userID))
	s.logger.Info("discord linked", zap.String("user_id", userID), zap.String("discord_id", discordID))
	return nil
}

// prepare loads the open quest and the user and reports whether the quest is
// already completed.
func (s *Service) prepare(ctx context.Context, userID, questID, platform string) (*model.Quest, *model.User, bool, error) {
	if userID == "" {
		return nil, nil, false, apperr.ErrUnauthorized
	}
	if questID == "" {
		return nil, nil, false, fmt.Errorf("%w: task id required", apperr.ErrValidation)
	}
	q, err := s.quests.Get(ctx, questID)
	if err != nil {
		return nil, nil, false, err
	}
	if q.Platform != platform {
		return nil, nil, false, fmt.Errorf("%w: quest %s is not a %s task", apperr.ErrValidation, q.ID, platform)
	}

	var user model.User
	err = s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, fmt.Errorf("%w: unknown user", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("load user: %w", err)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Submission{}).
		Where("user_id = ? AND quest_id = ?", userID, q.ID).Count(&n).Error; err != nil {
		return nil, nil, false, fmt.Errorf("load submission: %w", err)
	}
	return q, &user, n > 0, nil
}

// complete records the submission if absent and, on a user's first
// completion, activates the referral that brought them in.
func (s *Service) complete(ctx context.Context, user *model.User, q *model.Quest, evidence map[string]any) (Result, error) {
	evidence["checked_at"] = s.now().UTC()
	raw, err := json.Marshal(evidence)
	if err != nil {
		return Result{}, err
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.Submission{
			UserID:   user.ID,
			QuestID:  q.ID,
			Platform: q.Platform,
			Evidence: datatypes.JSON(raw),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sub)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		now := s.now().UTC()
		return tx.Model(&model.ReferredUser{}).
			Where("new_user_id = ? AND status = ?", user.ID, model.ReferralInactive).
			Updates(map[string]any{"status": model.ReferralActive, "activated_at": now}).Error
	})
	if err != nil {
		return Result{}, fmt.Errorf("record submission: %w", err)
	}
	if created {
		s.logger.Info("quest completed",
			zap.String("user_id", user.ID), zap.String("quest_id", q.ID), zap.String("platform", q.Platform))
	}
	return Result{Completed: true, AlreadyDone: !created, QuestID: q.ID, Points: q.Points}, nil
}

func (s *Service) loadToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var t model.Token
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: link a Discord account first", apperr.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	access, err := s.box.Open(t.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.box.Open(t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}, nil
}

// saveToken upserts the user's single token row.
func (s *Service) saveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	access, err := s.box.Seal(tok.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.box.Seal(tok.RefreshToken)
	if err != nil {
		return err
	}
	row := model.Token{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry.UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_type", "expiry"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
