package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/progression/errs"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 in the API error shape. The
// panic value and stack only reach the log; the caller gets the trace id
// to quote. http.ErrAbortHandler is re-raised so net/http drops the
// connection as it expects.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			traceID := GetTraceID(c)
			log.Error("handler panic",
				zap.Any("panic", rec),
				zap.String("trace_id", traceID),
				zap.String("learner_id", GetLearnerID(c)),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "internal server error",
				"kind":     errs.KindUnknown.String(),
				"trace_id": traceID,
			})
		}()
		c.Next()
	}
}
