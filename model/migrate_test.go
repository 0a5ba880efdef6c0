package model_test

import (
	"testing"
	"time"

	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	user := &model.User{WalletAddress: "0x00000000000000000000000000000000000000A1", Username: "alice"}
	require.NoError(t, db.Create(user).Error)
	assert.Len(t, user.ID, 36)

	var found model.User
	require.NoError(t, db.First(&found, "id = ?", user.ID).Error)
	assert.Equal(t, "alice", found.Username)

	q := &model.Quest{Title: "Follow us", Category: model.QuestCategoryOneOff, Platform: model.PlatformX, TargetID: "42"}
	require.NoError(t, db.Create(q).Error)
	assert.NotEmpty(t, q.ID)

	require.NoError(t, db.Create(&model.Submission{UserID: user.ID, QuestID: q.ID}).Error)
	require.NoError(t, db.Create(&model.Token{UserID: user.ID, AccessToken: "a", Expiry: time.Now()}).Error)
	require.NoError(t, db.Create(&model.ReferredUser{UserID: user.ID, NewUserID: "other", Username: "bob"}).Error)
	require.NoError(t, db.Create(&model.Timer{Name: "weekly", EndsAt: time.Now()}).Error)
	require.NoError(t, db.Create(&model.AuditLog{TraceID: "trace-001", Action: "quest.create"}).Error)

	var ref model.ReferredUser
	require.NoError(t, db.First(&ref).Error)
	assert.Equal(t, model.ReferralInactive, ref.Status)
}

func TestSubmission_UniquePerUserQuest(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.Submission{UserID: "u1", QuestID: "q1"}).Error)
	assert.Error(t, db.Create(&model.Submission{UserID: "u1", QuestID: "q1"}).Error)
	assert.NoError(t, db.Create(&model.Submission{UserID: "u1", QuestID: "q2"}).Error)
}

func TestBannedUser_UniqueColumns(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.BannedUser{UserID: "u1", WalletAddress: "0xA"}).Error)
	assert.Error(t, db.Create(&model.BannedUser{UserID: "u1", WalletAddress: "0xB"}).Error)
	assert.Error(t, db.Create(&model.BannedUser{UserID: "u2", WalletAddress: "0xA"}).Error)
}
