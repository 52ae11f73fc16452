package requestid

import (
	"regexp"

	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderName = "X-Request-ID"
	contextKey = "request_id"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Middleware assigns every request an ID, echoes it in the response and
// attaches a logger carrying it to the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderName)
		if !validID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(contextKey, id)
		c.Header(HeaderName, id)
		ctx := c.Request.Context()
		log := logger.FromContext(ctx).With("request_id", id)
		c.Request = c.Request.WithContext(logger.ContextWithLogger(ctx, log))
		c.Next()
	}
}

// FromGin returns the ID assigned by Middleware, or "".
func FromGin(c *gin.Context) string {
	return c.GetString(contextKey)
}
