package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/app"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	svc     *app.Service
	metrics *monitoring.Metrics
	logger  *zap.Logger
	dev     bool
	started time.Time
}

// NewHandlers creates a new handler set. In development mode internal
// errors are logged with a stack trace.
func NewHandlers(svc *app.Service, metrics *monitoring.Metrics, logger *zap.Logger, dev bool) *Handlers {
	return &Handlers{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
		dev:     dev,
		started: time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)

	r.POST("/profiles", h.CreateProfile)
	r.GET("/profiles/:id", h.GetProfile)
	r.PUT("/profiles/:id/fingerprint", h.UpdateFingerprint)
	r.DELETE("/profiles/:id", h.DeleteProfile)
	r.GET("/presets", h.ListPresets)

	r.POST("/sessions", h.LaunchSession)
	r.POST("/sessions/scratch", h.LaunchScratchSession)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions/:id", h.CloseSession)
	r.GET("/sessions/:id/pages", h.OpenPages)

	r.POST("/proxies", h.CreateProxy)
	r.POST("/proxies/check", h.CheckAllProxies)
	r.POST("/proxies/:id/check", h.CheckProxy)

	r.POST("/workflows", h.CreateWorkflow)
	r.POST("/workflows/validate", h.ValidateWorkflow)
	r.POST("/workflows/connect", h.CanConnect)
	r.POST("/workflows/:id/assign", h.AssignWorkflow)
	r.POST("/workflows/:id/execute", h.ExecuteWorkflow)

	r.GET("/executions/:id", h.GetExecution)
	r.GET("/jobs/:id", h.GetJob)
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "profile fleet backend",
	})
}

// Health reports liveness and live session count
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"stats":  h.svc.Stats(),
	})
}

// MetricsJSON returns a readable snapshot of the Prometheus counters
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}

// paramID parses a positive integer path parameter, answering 400 itself
// when it is malformed.
func paramID(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid " + name + ": " + c.Param(name),
		})
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request: " + err.Error(),
	})
}
