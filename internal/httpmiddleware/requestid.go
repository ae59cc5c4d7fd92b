package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

const loggerKey = "logger"

// RequestID assigns a ULID to requests that do not carry one and stores a
// logger tagged with it in the gin context.
func RequestID(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = zap.NewNop()
	}
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Header(HeaderRequestID, id)
		c.Set(loggerKey, base.With(zap.String("request_id", id)))
		c.Next()
	}
}

// Logger returns the request logger set by RequestID, or a no-op logger.
func Logger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
