package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/api/rest"
	"github.com/nexurateam/nexura-app-sub001/audit"
	"github.com/nexurateam/nexura-app-sub001/cache"
	"github.com/nexurateam/nexura-app-sub001/config"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"github.com/nexurateam/nexura-app-sub001/ratelimit"
	"github.com/nexurateam/nexura-app-sub001/scheduler"
	"github.com/nexurateam/nexura-app-sub001/testutil"
	"github.com/nexurateam/nexura-app-sub001/tokenbox"
	"github.com/nexurateam/nexura-app-sub001/verify"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "admin-key"

type fakeX struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeX) FollowingIDs(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ids, f.err
}

func (f *fakeX) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDiscord struct {
	guilds     []string
	exchangeOK bool
	guildCalls atomic.Int32
}

func (f *fakeDiscord) AuthCodeURL(state string) string {
	return "https://discord.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeDiscord) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	if !f.exchangeOK {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "at-" + code, RefreshToken: "rt-" + code, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeDiscord) CurrentUserID(_ context.Context, tok *oauth2.Token) (string, *oauth2.Token, error) {
	return "discord-42", tok, nil
}

func (f *fakeDiscord) GuildIDs(_ context.Context, tok *oauth2.Token) ([]string, *oauth2.Token, error) {
	f.guildCalls.Add(1)
	return f.guilds, tok, nil
}

type harness struct {
	r       *gin.Engine
	db      *gorm.DB
	kv      cache.Cache
	cfg     *config.Config
	sched   *scheduler.Scheduler
	x       *fakeX
	discord *fakeDiscord
	wallets int
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AdminKey:    testAdminKey,
			FrontendURL: "http://front.test/app",
		},
		Security: config.SecurityConfig{
			JWTSecret:  "test-secret",
			JWTTTLH:    72 * time.Hour,
			CookieName: "nexura_session",
			NonceTTL:   5 * time.Minute,
			IPv6Subnet: 56,
			SignIn: config.WindowConfig{
				Window:  3 * time.Hour,
				Max:     3,
				Message: "too many sign-in attempts, please try again later",
			},
		},
	}
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, fn := range tweak {
		fn(cfg)
	}
	log := zaptest.NewLogger(t)
	db := testutil.SetupTestDB(t)
	kv := testutil.SetupTestCache(t)

	sched := scheduler.New(log)
	t.Cleanup(sched.Stop)
	auditSvc := audit.New(db, log, audit.WithBatch(1, 10*time.Millisecond))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		auditSvc.Stop(ctx)
	})

	h := &harness{
		db:      db,
		kv:      kv,
		cfg:     cfg,
		sched:   sched,
		x:       &fakeX{},
		discord: &fakeDiscord{exchangeOK: true},
	}
	quests := quest.NewService(db, log)
	h.r = rest.NewRouter(rest.Deps{
		Config:    cfg,
		DB:        db,
		Cache:     kv,
		Quests:    quests,
		Verifier:  verify.NewService(db, kv, quests, h.x, h.discord, tokenbox.New("box-key"), log),
		Scheduler: sched,
		Audit:     auditSvc,
		SignIn:    ratelimit.NewLocal(cfg.Security.SignIn.Max, cfg.Security.SignIn.Window),
		Logger:    log,
	})
	return h
}

// login creates a user with an active session and returns it with its token.
func (h *harness) login(t *testing.T, mutate ...func(*model.User)) (*model.User, string) {
	t.Helper()
	h.wallets++
	u := &model.User{
		WalletAddress: fmt.Sprintf("0x%040x", h.wallets),
		Username:      fmt.Sprintf("user%d", h.wallets),
	}
	for _, fn := range mutate {
		fn(u)
	}
	require.NoError(t, h.db.Create(u).Error)
	tok, err := mw.GenerateToken(u.ID, h.cfg.Security.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.kv.Set(context.Background(), mw.SessionPrefix+tok, u.ID, time.Hour))
	return u, tok
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func bearer(tok string) []string { return []string{"Authorization", "Bearer " + tok} }

func admin() []string { return []string{"X-Admin-Key", testAdminKey} }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (h *harness) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(m).Count(&n).Error)
	return n
}

func (h *harness) createQuest(t *testing.T, platform, target string) *model.Quest {
	t.Helper()
	q := &model.Quest{Title: "quest", Category: model.QuestCategoryOneOff, Platform: platform, TargetID: target, Points: 25, CreatedAt: time.Now().UTC()}
	require.NoError(t, h.db.Create(q).Error)
	return q
}
