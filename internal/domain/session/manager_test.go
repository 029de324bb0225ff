package session

import (
	"context"
	"testing"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManagerRegistry(t *testing.T) {
	m := NewManager(zap.NewNop())

	m.Add(&Handle{SessionID: 3, ProfileID: 1, Browser: browsertest.NewBrowser("rod")})
	m.Add(&Handle{SessionID: 1, ProfileID: 1, Browser: browsertest.NewBrowser("rod")})
	m.Add(&Handle{SessionID: 2, ProfileID: 2, Browser: browsertest.NewBrowser("rod")})

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int{1, 2, 3}, m.IDs())

	byProfile := m.ByProfile(1)
	require.Len(t, byProfile, 2)
	assert.Equal(t, 1, byProfile[0].SessionID)
	assert.Equal(t, 3, byProfile[1].SessionID)

	_, ok := m.Remove(1)
	assert.True(t, ok)
	_, ok = m.Remove(1)
	assert.False(t, ok, "second remove loses")
	_, ok = m.Get(1)
	assert.False(t, ok)
}

func TestManagerDisconnectCallback(t *testing.T) {
	m := NewManager(zap.NewNop())
	gone := make(chan int, 1)
	m.OnDisconnect(func(h *Handle) { gone <- h.SessionID })

	cleaned := make(chan struct{})
	b := browsertest.NewBrowser("chromedp")
	m.Add(&Handle{SessionID: 9, Browser: b, cleanup: func() { close(cleaned) }})

	b.Crash()

	select {
	case id := <-gone:
		assert.Equal(t, 9, id)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not called")
	}
	<-cleaned
	assert.Zero(t, m.Len())
}

func TestManagerRemoveSilencesWatcher(t *testing.T) {
	m := NewManager(zap.NewNop())
	called := make(chan struct{}, 1)
	m.OnDisconnect(func(*Handle) { called <- struct{}{} })

	b := browsertest.NewBrowser("rod")
	m.Add(&Handle{SessionID: 1, Browser: b})
	_, ok := m.Remove(1)
	require.True(t, ok)
	require.NoError(t, b.Close())

	select {
	case <-called:
		t.Fatal("callback fired after explicit remove")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePageOpensWhenEmpty(t *testing.T) {
	b := browsertest.NewBrowser("rod")
	for _, p := range b.FakePages() {
		require.NoError(t, p.Close(context.Background()))
	}
	h := &Handle{Browser: b}

	page, err := h.Page(context.Background())
	require.NoError(t, err)
	again, err := h.Page(context.Background())
	require.NoError(t, err)
	assert.Same(t, page, again)
	assert.Len(t, b.FakePages(), 2)
}
