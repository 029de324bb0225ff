package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/job"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	eventBuffer  = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware
	},
}

// Subscriber publishes execution events. *job.Updater satisfies it.
type Subscriber interface {
	Subscribe(buffer int) (<-chan job.Event, func())
}

// Message is a client request.
type Message struct {
	Type string `json:"type"`
}

// Handler manages WebSocket connections
type Handler struct {
	events  Subscriber
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(events Subscriber, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	return &Handler{events: events, metrics: metrics, logger: logger}
}

// HandleConnection upgrades the request and forwards events until either
// side goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	var jobID int
	if raw := c.Query("jobId"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid jobId: " + raw})
			return
		}
		jobID = v
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	events, cancel := h.events.Subscribe(eventBuffer)
	defer cancel()

	// The reader owns conn reads; every write happens on this goroutine.
	incoming := make(chan Message)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read error", zap.Error(err))
				}
				return
			}
			select {
			case incoming <- msg:
			case <-c.Request.Context().Done():
				return
			}
		}
	}()

	if err := h.send(conn, gin.H{"type": "system", "message": "subscribed to execution updates", "jobId": jobID}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = h.send(conn, gin.H{"type": "complete", "timestamp": time.Now().Unix()})
				return
			}
			if jobID != 0 && ev.Execution.JobID != jobID {
				continue
			}
			if err := h.send(conn, gin.H{
				"type":      "execution",
				"execution": ev.Execution,
				"jobStatus": ev.JobStatus,
				"timestamp": time.Now().Unix(),
			}); err != nil {
				return
			}
		case msg := <-incoming:
			var err error
			switch msg.Type {
			case "ping":
				err = h.send(conn, gin.H{"type": "pong"})
			default:
				err = h.sendError(conn, "unknown message type")
			}
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, data any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) error {
	return h.send(conn, gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
