package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route templates keep label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a launch through one engine
type Timer struct {
	start   time.Time
	metrics *Metrics
	engine  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, engine string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		engine:  engine,
	}
}

// Stop stops the timer and records the launch outcome
func (t *Timer) Stop(err error) {
	t.metrics.RecordLaunch(t.engine, err, time.Since(t.start))
}
