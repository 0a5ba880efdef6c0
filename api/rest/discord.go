package rest

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/verify"
	"go.uber.org/zap"
)

// DiscordHandler serves the Discord account-link flow.
type DiscordHandler struct {
	verifier    *verify.Service
	frontendURL string
	logger      *zap.Logger
}

func NewDiscordHandler(v *verify.Service, frontendURL string, logger *zap.Logger) *DiscordHandler {
	return &DiscordHandler{verifier: v, frontendURL: frontendURL, logger: logger}
}

// AuthURL handles GET /api/auth/discord.
func (h *DiscordHandler) AuthURL(c *gin.Context) {
	link, err := h.verifier.DiscordAuthURL(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

// Callback handles GET /api/auth/discord/callback?code=...&state=...
// The outcome goes back to the frontend as ?discord=success|failed; the
// code and tokens never appear in the response.
func (h *DiscordHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	err := h.verifier.CompleteDiscordLink(c.Request.Context(), mw.GetUserID(c), code, c.Query("state"))
	outcome := "success"
	if err != nil {
		outcome = "failed"
		h.logger.Warn("discord link failed",
			zap.Error(err),
			zap.String("user_id", mw.GetUserID(c)),
			zap.String("trace_id", mw.GetTraceID(c)))
	}
	c.Redirect(http.StatusFound, h.redirectTarget(outcome))
}

func (h *DiscordHandler) redirectTarget(outcome string) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil || h.frontendURL == "" {
		return "/?discord=" + outcome
	}
	q := u.Query()
	q.Set("discord", outcome)
	u.RawQuery = q.Encode()
	return u.String()
}
