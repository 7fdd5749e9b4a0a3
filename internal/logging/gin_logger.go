package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GinLogger logs one line per API request through logrus.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		entry := log.WithFields(log.Fields{
			"component": "api",
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).Round(time.Microsecond),
			"client":    c.ClientIP(),
		})
		msg := c.Request.Method + " " + path
		switch {
		case c.Writer.Status() >= 500:
			entry.Error(msg)
		case c.Writer.Status() >= 400:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
