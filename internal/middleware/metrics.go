package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phuhao00/conflux-demo/pkg/metrics"
)

// MetricsMiddleware tracks request counts and response times
func MetricsMiddleware(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		collector.RecordRequest()

		c.Next()

		duration := time.Since(startTime)
		success := c.Writer.Status() < 400

		collector.RecordRequestComplete(duration, success)
	}
}
