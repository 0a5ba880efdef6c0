package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/apperr"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/model"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"go.uber.org/zap"
)

const (
	msgQuestCreated = "quest quest created!"
	msgQuestInvalid = "send the correct data required to create a quest"
	msgQuestFailed  = "error creating quest"
)

// QuestScheduler is notified of quests that will expire.
type QuestScheduler interface {
	ScheduleExpiry(q *model.Quest)
}

// QuestHandler serves quest listing and admin quest management.
type QuestHandler struct {
	quests *quest.Service
	expiry QuestScheduler
	audit  Auditor
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler. expiry and audit may be nil.
func NewQuestHandler(quests *quest.Service, expiry QuestScheduler, audit Auditor, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{quests: quests, expiry: expiry, audit: audit, logger: logger}
}

// List handles GET /api/quests.
func (h *QuestHandler) List(c *gin.Context) {
	views, err := h.quests.ListActive(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "error listing quests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": views})
}

// Create handles POST /api/admin/quests.
func (h *QuestHandler) Create(c *gin.Context) {
	var p quest.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgQuestInvalid})
		return
	}
	q, err := h.quests.Create(c.Request.Context(), p)
	record(h.audit, c, "quest.create", p, err)
	if errors.Is(err, apperr.ErrValidation) {
		var verr *quest.ValidationError
		body := gin.H{"error": msgQuestInvalid}
		if errors.As(err, &verr) {
			body["fields"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	if err != nil {
		h.logger.Error("create quest", zap.Error(err), zap.String("trace_id", mw.GetTraceID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgQuestFailed})
		return
	}
	if h.expiry != nil && q.Expires != nil {
		h.expiry.ScheduleExpiry(q)
	}
	c.JSON(http.StatusOK, gin.H{"message": msgQuestCreated, "quest": q})
}

// Delete handles DELETE /api/admin/quests/:id.
func (h *QuestHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	err := h.quests.Delete(c.Request.Context(), id)
	record(h.audit, c, "quest.delete", gin.H{"id": id}, err)
	if err != nil {
		respondError(c, h.logger, err, "error deleting quest")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "quest deleted"})
}
