package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexurateam/nexura-app-sub001/apperr"
	mw "github.com/nexurateam/nexura-app-sub001/middleware"
	"github.com/nexurateam/nexura-app-sub001/quest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// respondError writes err as JSON. Client errors carry their message;
// internal errors are logged and answered with internalMsg.
func respondError(c *gin.Context, log *zap.Logger, err error, internalMsg string) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		log.Error(internalMsg,
			zap.Error(err),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": internalMsg})
		return
	}
	body := gin.H{"error": publicMessage(err)}
	var verr *quest.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.JSON(status, body)
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	default:
		return err.Error()
	}
}

// isUniqueViolation reports a duplicate-key error. Every driver is opened
// with TranslateError, so gorm's sentinel is the only signal needed.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
