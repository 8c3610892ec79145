package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/progression/errs"
)

// statusOf maps the error taxonomy onto HTTP.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers {"error","kind","field"}. Storage and internal errors
// are not echoed to the caller; the access log carries them.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := errs.KindOf(err)
	status := statusOf(err)

	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "storage temporarily unavailable"
	case http.StatusInternalServerError:
		msg = "internal server error"
	}
	body := gin.H{"error": msg, "kind": kind.String()}
	if f := errs.FieldOf(err); f != "" {
		body["field"] = f
	}
	c.AbortWithStatusJSON(status, body)
}

// writeReadError is writeError for read routes, where an unknown learner is
// a 404 rather than a rejected event.
func writeReadError(c *gin.Context, err error) {
	if errors.Is(err, errs.ErrUnknownLearner) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "learner not found", "kind": errs.KindValidation.String(), "field": "learner_id"})
		return
	}
	writeError(c, err)
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
