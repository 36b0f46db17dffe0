package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodySize caps the request body; reads past the limit fail.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			AbortWithError(c, newValidationError("body", "too_large", "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
