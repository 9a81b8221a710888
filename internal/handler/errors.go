package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/frictionless-support/support-service/internal/errs"
)

var statusByKind = map[errs.Kind]int{
	errs.KindValidation:   http.StatusBadRequest,
	errs.KindUnauthorized: http.StatusUnauthorized,
	errs.KindPermission:   http.StatusForbidden,
	errs.KindNotFound:     http.StatusNotFound,
	errs.KindConflict:     http.StatusConflict,
	errs.KindExternal:     http.StatusBadGateway,
	errs.KindPersistence:  http.StatusInternalServerError,
}

// writeError maps err to a status and a client-safe message. Causes are logged, never returned.
func writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": errs.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
