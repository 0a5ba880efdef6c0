package rest_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTwitter(u *model.User) { u.TwitterID = "777" }

func TestCheckX_Completes(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t, withTwitter)
	q := h.createQuest(t, model.PlatformX, "12345")
	h.x.ids = []string{"999", "12345"}

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "task completed", resp["message"])
	assert.Equal(t, true, resp["completed"])
	assert.EqualValues(t, 1, h.count(t, &model.Submission{}))
}

func TestCheckX_NotFollowing(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t, withTwitter)
	q := h.createQuest(t, model.PlatformX, "12345")
	h.x.ids = []string{"999"}

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "task not completed", resp["message"])
	assert.Equal(t, false, resp["completed"])
	assert.Zero(t, h.count(t, &model.Submission{}))
}

func TestCheckX_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	q := h.createQuest(t, model.PlatformX, "12345")
	h.x.ids = []string{"12345"}

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, h.x.Calls())
	assert.Zero(t, h.count(t, &model.Submission{}))
}

func TestCheckX_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t, withTwitter)
	q := h.createQuest(t, model.PlatformX, "12345")
	h.x.ids = []string{"12345"}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, h.count(t, &model.Submission{}))

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]any)
	assert.Equal(t, true, result["already_done"])
}

func TestCheckX_WrongPlatform(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t, withTwitter)
	q := h.createQuest(t, model.PlatformDiscord, "guild-1")

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckX_UnknownQuest(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t, withTwitter)

	w := h.do(http.MethodPost, "/api/check-x/does-not-exist", nil, bearer(tok)...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckX_NoLinkedAccount(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t)
	q := h.createQuest(t, model.PlatformX, "12345")

	w := h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.x.Calls())
}

func TestCheckDiscord_WithoutToken(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t)
	q := h.createQuest(t, model.PlatformDiscord, "guild-1")

	w := h.do(http.MethodPost, "/api/check-discord/"+q.ID, nil, bearer(tok)...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.discord.guildCalls.Load())
}

func TestCheckX_ActivatesReferral(t *testing.T) {
	h := newHarness(t)
	referrer, _ := h.login(t)
	u, tok := h.login(t, withTwitter)
	require.NoError(t, h.db.Create(&model.ReferredUser{
		UserID: referrer.ID, NewUserID: u.ID, Status: model.ReferralInactive, SignedUp: true, Username: u.Username,
	}).Error)
	q := h.createQuest(t, model.PlatformX, "12345")
	h.x.ids = []string{"12345"}

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/check-x/"+q.ID, nil, bearer(tok)...).Code)

	var ref model.ReferredUser
	require.NoError(t, h.db.Where("new_user_id = ?", u.ID).First(&ref).Error)
	assert.Equal(t, model.ReferralActive, ref.Status)
	assert.NotNil(t, ref.ActivatedAt)
}
