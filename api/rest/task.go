package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/verify"
	"go.uber.org/zap"
)

// TaskHandler runs the external task checks.
type TaskHandler struct {
	verifier *verify.Service
	logger   *zap.Logger
}

func NewTaskHandler(v *verify.Service, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{verifier: v, logger: logger}
}

// CheckX handles POST /api/check-x/:id.
func (h *TaskHandler) CheckX(c *gin.Context) {
	h.check(c, h.verifier.CheckX, "error verifying x task")
}

// CheckDiscord handles POST /api/check-discord/:id.
func (h *TaskHandler) CheckDiscord(c *gin.Context) {
	h.check(c, h.verifier.CheckDiscord, "error verifying discord task")
}

func (h *TaskHandler) check(c *gin.Context, fn func(ctx context.Context, userID, questID string) (verify.Result, error), failMsg string) {
	id, ok := mw.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	res, err := fn(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, failMsg)
		return
	}
	msg := "task not completed"
	if res.Completed {
		msg = "task completed"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "result": res, "completed": res.Completed})
}
