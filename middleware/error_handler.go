package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/queuectl/common"
	"github.com/sirupsen/logrus"
)

// ErrorHandler renders the last error attached to the context. APIErrors
// keep their status and fields; a request that ran past its deadline gets
// 408; anything else is logged and hidden behind a generic 500.
func ErrorHandler(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var apiErr common.APIError
		switch {
		case errors.As(err, &apiErr):
			response := gin.H{"error": apiErr.Message}
			if apiErr.Fields != nil {
				response["fields"] = apiErr.Fields
			}
			if apiErr.Status >= http.StatusInternalServerError {
				log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
			}
			c.JSON(apiErr.Status, response)
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "request timed out"})
		default:
			log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}
