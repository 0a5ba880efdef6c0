package rest_test

import (
	"crypto/ecdsa"
	"net/http"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexurateam/nexura-app-sub001/config"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signer struct {
	key  *ecdsa.PrivateKey
	addr string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s signer) sign(t *testing.T, msg string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), s.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// signIn runs the nonce + signature flow and returns the sign-in response.
func (h *harness) signIn(t *testing.T, s signer, referrer string) map[string]any {
	t.Helper()
	w := h.do(http.MethodGet, "/api/auth/nonce?address="+s.addr, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode(t, w)["message"].(string)

	w = h.do(http.MethodPost, "/api/auth/signin", map[string]string{
		"address":   s.addr,
		"signature": s.sign(t, msg),
		"referrer":  referrer,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)
}

func TestSignIn_CreatesUserAndSession(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)

	resp := h.signIn(t, s, "")
	assert.Equal(t, true, resp["created"])
	tok := resp["token"].(string)
	require.NotEmpty(t, tok)

	w := h.do(http.MethodGet, "/api/me", nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, strings.ToLower(s.addr), user["wallet_address"])

	again := h.signIn(t, s, "")
	assert.Equal(t, false, again["created"])
	assert.EqualValues(t, 1, h.count(t, &model.User{}))
}

func TestSignIn_WalletsSharingPrefixGetDistinctUsernames(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)
	addr := strings.ToLower(s.addr)

	h.login(t, func(u *model.User) {
		u.WalletAddress = addr[:12] + strings.Repeat("0", 30)
		u.Username = "user_" + addr[2:12]
	})

	resp := h.signIn(t, s, "")
	assert.Equal(t, true, resp["created"])

	var created model.User
	require.NoError(t, h.db.First(&created, "wallet_address = ?", addr).Error)
	assert.Equal(t, "user_"+addr[2:], created.Username)
}

func TestSignIn_SetsSessionCookie(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)

	w := h.do(http.MethodGet, "/api/auth/nonce?address="+s.addr, nil)
	msg := decode(t, w)["message"].(string)
	w = h.do(http.MethodPost, "/api/auth/signin", map[string]string{"address": s.addr, "signature": s.sign(t, msg)})
	require.Equal(t, http.StatusOK, w.Code)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "nexura_session=")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Lax")
}

func TestSignIn_NonceIsSingleUse(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)

	w := h.do(http.MethodGet, "/api/auth/nonce?address="+s.addr, nil)
	msg := decode(t, w)["message"].(string)
	body := map[string]string{"address": s.addr, "signature": s.sign(t, msg)}

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/auth/signin", body).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/auth/signin", body).Code)
}

func TestSignIn_WrongSigner(t *testing.T) {
	h := newHarness(t)
	owner, other := newSigner(t), newSigner(t)

	w := h.do(http.MethodGet, "/api/auth/nonce?address="+owner.addr, nil)
	msg := decode(t, w)["message"].(string)
	w = h.do(http.MethodPost, "/api/auth/signin", map[string]string{"address": owner.addr, "signature": other.sign(t, msg)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, h.count(t, &model.User{}))
}

func TestNonce_InvalidAddress(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/auth/nonce?address=bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignIn_BannedWallet(t *testing.T) {
	h := newHarness(t)
	s := newSigner(t)
	h.signIn(t, s, "")

	var u model.User
	require.NoError(t, h.db.First(&u).Error)
	require.NoError(t, h.db.Create(&model.BannedUser{UserID: u.ID, WalletAddress: u.WalletAddress}).Error)

	w := h.do(http.MethodGet, "/api/auth/nonce?address="+s.addr, nil)
	msg := decode(t, w)["message"].(string)
	w = h.do(http.MethodPost, "/api/auth/signin", map[string]string{"address": s.addr, "signature": s.sign(t, msg)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSignIn_RecordsReferral(t *testing.T) {
	h := newHarness(t)
	referrer, _ := h.login(t, func(u *model.User) { u.Username = "alice" })

	h.signIn(t, newSigner(t), "alice")

	var refs []model.ReferredUser
	require.NoError(t, h.db.Find(&refs).Error)
	require.Len(t, refs, 1)
	assert.Equal(t, referrer.ID, refs[0].UserID)
	assert.Equal(t, model.ReferralInactive, refs[0].Status)
	assert.True(t, refs[0].SignedUp)
}

func TestSignIn_ReferrerByDefaultUsername(t *testing.T) {
	h := newHarness(t)
	first := newSigner(t)
	h.signIn(t, first, "")

	h.signIn(t, newSigner(t), "user_"+strings.ToLower(first.addr)[2:])
	assert.EqualValues(t, 1, h.count(t, &model.ReferredUser{}))
}

func TestSignIn_UnknownReferrerIgnored(t *testing.T) {
	h := newHarness(t)
	resp := h.signIn(t, newSigner(t), "nobody")
	assert.Equal(t, true, resp["created"])
	assert.Zero(t, h.count(t, &model.ReferredUser{}))
}

func TestSignIn_RateLimitedAfterThreeAttempts(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{})
		require.Equal(t, http.StatusBadRequest, w.Code, "attempt %d", i+1)
		assert.Equal(t, "3", w.Header().Get("RateLimit-Limit"))
	}

	w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10800", w.Header().Get("Retry-After"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "too many sign-in attempts, please try again later", decode(t, w)["error"])

	// Other routes are not covered by the sign-in budget.
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/auth/nonce", nil).Code)
}

func TestSignIn_ForwardedForDoesNotResetBudget(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{},
			"X-Forwarded-For", "198.51.100."+itoa(int64(i+1)), "X-Real-IP", "198.51.100."+itoa(int64(i+1)))
		require.Equal(t, http.StatusBadRequest, w.Code, "attempt %d", i+1)
	}

	w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{},
		"X-Forwarded-For", "198.51.100.99", "X-Real-IP", "198.51.100.99")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSignIn_TrustedProxyForwardsClientIP(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	h := newHarness(t, func(c *config.Config) { c.Server.TrustedProxies = []string{"192.0.2.0/24"} })

	for i := 0; i < 3; i++ {
		w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{}, "X-Forwarded-For", "198.51.100.1")
		require.Equal(t, http.StatusBadRequest, w.Code, "attempt %d", i+1)
	}
	w := h.do(http.MethodPost, "/api/auth/signin", map[string]string{}, "X-Forwarded-For", "198.51.100.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = h.do(http.MethodPost, "/api/auth/signin", map[string]string{}, "X-Forwarded-For", "198.51.100.2")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RevokesSession(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t)

	w := h.do(http.MethodPost, "/api/auth/logout", nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/me", nil, bearer(tok)...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	h := newHarness(t)
	_, tok := h.login(t)

	w := h.do(http.MethodPost, "/api/auth/refresh", nil, bearer(tok)...)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := decode(t, w)["token"].(string)
	require.NotEqual(t, tok, fresh)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", nil, bearer(tok)...).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", nil, bearer(fresh)...).Code)
}

func TestRefresh_RequiresAuth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
