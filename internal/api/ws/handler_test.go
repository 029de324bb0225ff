package ws

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/job"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// feed is a Subscriber whose events are pushed by the test.
type feed struct {
	mu     sync.Mutex
	subs   []chan job.Event
	joined chan struct{}
}

func newFeed() *feed { return &feed{joined: make(chan struct{}, 4)} }

func (f *feed) Subscribe(buffer int) (<-chan job.Event, func()) {
	ch := make(chan job.Event, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	f.joined <- struct{}{}
	return ch, func() {}
}

func (f *feed) publish(ev job.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

func dial(t *testing.T, f *feed, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/executions/stream", NewHandler(f, nil, zap.NewNop()).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/executions/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamForwardsEvents(t *testing.T) {
	f := newFeed()
	conn := dial(t, f, "")
	<-f.joined
	assert.Equal(t, "system", read(t, conn)["type"])

	f.publish(job.Event{
		Execution: types.Execution{ID: 4, JobID: 2, Status: types.ExecutionRunning},
		JobStatus: types.JobRunning,
	})

	msg := read(t, conn)
	assert.Equal(t, "execution", msg["type"])
	assert.Equal(t, "running", msg["jobStatus"])
	exec := msg["execution"].(map[string]any)
	assert.EqualValues(t, 4, exec["id"])
}

func TestStreamFiltersByJob(t *testing.T) {
	f := newFeed()
	conn := dial(t, f, "?jobId=9")
	<-f.joined
	read(t, conn)

	f.publish(job.Event{Execution: types.Execution{ID: 1, JobID: 3}})
	f.publish(job.Event{Execution: types.Execution{ID: 2, JobID: 9}, JobStatus: types.JobCompleted})

	msg := read(t, conn)
	exec := msg["execution"].(map[string]any)
	assert.EqualValues(t, 2, exec["id"], "events of other jobs are skipped")
}

func TestStreamAnswersPing(t *testing.T) {
	f := newFeed()
	conn := dial(t, f, "")
	<-f.joined
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(Message{Type: "bogus"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "unknown message type", msg["message"])
}

func TestStreamRejectsBadJobID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/executions/stream", NewHandler(newFeed(), nil, zap.NewNop()).HandleConnection)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/executions/stream?jobId=x", nil))
	assert.Equal(t, 400, w.Code)
}
