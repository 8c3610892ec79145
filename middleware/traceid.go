package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
)

// Caller supplied ids are journaled and echoed back, so they are limited to
// the audit column width and a header-safe alphabet.
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,36}$`)

// TraceID keeps a well-formed X-Trace-ID from the caller, which lets a
// collaborator service correlate its own logs with the event journal.
// Anything else is replaced by a fresh UUID.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if !traceIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
