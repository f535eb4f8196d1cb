package ctxmanage

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type key string

// TraceIdKey is set by the logging middleware for every request.
const TraceIdKey key = "1"

// GetTraceIdOfRequest returns the trace id assigned to the request,
// generating one if the middleware has not run for this route.
func GetTraceIdOfRequest(c *gin.Context) string {
	ctx := c.Request.Context()
	traceId, ok := ctx.Value(TraceIdKey).(string)
	if !ok {
		traceId = uuid.NewString()
	}
	return traceId
}
