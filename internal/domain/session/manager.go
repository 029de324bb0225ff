package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser"
	"go.uber.org/zap"
)

// Handle is a live browser bound to a session record.
type Handle struct {
	SessionID int
	ProfileID int
	Engine    string
	Proxy     *proxy.Tunnel
	StartedAt time.Time
	Browser   browser.Browser

	mu      sync.Mutex
	page    browser.Page
	cleanup func()
	done    chan struct{}
	stopped sync.Once
	cleaned sync.Once
}

// Page returns the session's primary page, opening one if the browser
// has none.
func (h *Handle) Page(ctx context.Context) (browser.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page != nil {
		return h.page, nil
	}
	pages, err := h.Browser.Pages(ctx)
	if err == nil && len(pages) > 0 {
		h.page = pages[0]
		return h.page, nil
	}
	page, err := h.Browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	h.page = page
	return page, nil
}

// unwatch stops the disconnect watcher.
func (h *Handle) unwatch() {
	h.stopped.Do(func() {
		if h.done != nil {
			close(h.done)
		}
	})
}

// finish runs the directory cleanup once the browser is gone.
func (h *Handle) finish() {
	h.cleaned.Do(func() {
		if h.cleanup != nil {
			h.cleanup()
		}
	})
}

// Manager is the registry of live handles keyed by session id. Entries are
// removed on Close or when the browser disconnects on its own.
type Manager struct {
	mu      sync.RWMutex
	handles map[int]*Handle

	logger       *zap.Logger
	metrics      *monitoring.Metrics
	onDisconnect func(*Handle)
}

// NewManager creates an empty registry.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		handles: make(map[int]*Handle),
		logger:  logger,
	}
}

// WithMetrics reports the registry size as a gauge.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// OnDisconnect sets the callback run after a browser exits on its own.
func (m *Manager) OnDisconnect(fn func(*Handle)) {
	m.mu.Lock()
	m.onDisconnect = fn
	m.mu.Unlock()
}

// Add registers h and watches its browser for disconnects.
func (m *Manager) Add(h *Handle) {
	if h.done == nil {
		h.done = make(chan struct{})
	}

	m.mu.Lock()
	m.handles[h.SessionID] = h
	n := len(m.handles)
	m.mu.Unlock()
	m.metrics.SetSessionsActive(n)

	go m.watch(h)
}

func (m *Manager) watch(h *Handle) {
	select {
	case <-h.done:
		return
	case <-h.Browser.Disconnected():
	}

	if _, ok := m.Remove(h.SessionID); !ok {
		return
	}
	h.finish()
	m.logger.Info("browser disconnected",
		zap.Int("session_id", h.SessionID),
		zap.Int("profile_id", h.ProfileID),
		zap.String("engine", h.Engine),
	)

	m.mu.RLock()
	fn := m.onDisconnect
	m.mu.RUnlock()
	if fn != nil {
		fn(h)
	}
}

// Get returns the handle for sessionID.
func (m *Manager) Get(sessionID int) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[sessionID]
	return h, ok
}

// Remove unregisters sessionID and stops its watcher. It reports whether
// the entry existed; only one caller ever wins. The caller owns closing
// the browser.
func (m *Manager) Remove(sessionID int) (*Handle, bool) {
	m.mu.Lock()
	h, ok := m.handles[sessionID]
	if ok {
		delete(m.handles, sessionID)
	}
	n := len(m.handles)
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	m.metrics.SetSessionsActive(n)
	h.unwatch()
	return h, true
}

// ByProfile returns the live handles of one profile, oldest first.
func (m *Manager) ByProfile(profileID int) []*Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Handle
	for _, h := range m.handles {
		if h.ProfileID == profileID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// IDs lists the live session ids in ascending order.
func (m *Manager) IDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
