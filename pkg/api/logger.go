package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs each request through logrus. Client errors log at Warn, server errors at Error.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// handlers may rewrite the URL
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"method":     c.Request.Method,
			"path":       path,
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Errorf("%s %s failed", c.Request.Method, path)
		case status >= http.StatusBadRequest:
			entry.Warnf("%s %s rejected", c.Request.Method, path)
		default:
			entry.Debugf("%s %s", c.Request.Method, path)
		}
	}
}
