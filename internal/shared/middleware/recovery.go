package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"payhook/internal/shared/response"
	"payhook/pkg/logger"
)

// Recovery converts a handler panic into a 500 without taking the
// process down. The ingest pipeline has its own containment; this is
// the net for every other route.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorFields("handler panic recovered", fmt.Errorf("%v", r), map[string]interface{}{
					"request_id": c.GetString("request_id"),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
				})
				response.InternalServerError(c, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}
