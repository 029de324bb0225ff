package proxy

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/NTGPC/ntglogin-sub000/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const probeURL = "http://probe.test/generate_204"

// fakeProxy answers every proxied request with status.
func fakeProxy(t *testing.T, status int) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status >= 300 && status < 400 {
			w.Header().Set("Location", "http://probe.test/elsewhere")
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return splitHostPort(t, srv.Listener.Addr().String())
}

// deadAddr returns a loopback address nothing listens on.
func deadAddr(t *testing.T) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return splitHostPort(t, addr)
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newChecker(t *testing.T, st *memory.Store, sealer *crypto.Sealer) *Checker {
	t.Helper()
	if sealer == nil {
		var err error
		sealer, err = crypto.NewSealer("")
		require.NoError(t, err)
	}
	return NewChecker(st, sealer, Options{ProbeURL: probeURL, Timeout: 2 * time.Second}, zap.NewNop())
}

func addProxy(t *testing.T, st *memory.Store, p types.Proxy) int {
	t.Helper()
	require.NoError(t, st.CreateProxy(context.Background(), &p))
	return p.ID
}

func TestCheckVerdicts(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   types.ProxyStatus
	}{
		{"no content is live", http.StatusNoContent, types.ProxyLive},
		{"ok is live", http.StatusOK, types.ProxyLive},
		{"redirect is live", http.StatusFound, types.ProxyLive},
		{"forbidden is die", http.StatusForbidden, types.ProxyDie},
		{"bad gateway is die", http.StatusBadGateway, types.ProxyDie},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			host, port := fakeProxy(t, tt.status)
			id := addProxy(t, st, types.Proxy{Host: host, Port: port, Type: types.ProxyHTTP, Active: true})

			res, err := newChecker(t, st, nil).Check(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.status, res.StatusCode)

			stored, err := st.GetProxy(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
			require.NotNil(t, stored.LastChecked)
			if tt.want == types.ProxyLive {
				require.NotNil(t, stored.LatencyMs)
			}
		})
	}
}

func TestCheckUnreachableLoopback(t *testing.T) {
	for _, typ := range []types.ProxyType{types.ProxyHTTP, types.ProxySOCKS5} {
		t.Run(string(typ), func(t *testing.T) {
			st := memory.New()
			host, port := deadAddr(t)
			id := addProxy(t, st, types.Proxy{
				Host: host, Port: port, Type: typ, Active: true,
				Username: "user", Password: "pass",
			})

			res, err := newChecker(t, st, nil).Check(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, types.ProxyDie, res.Status)
			assert.NotEmpty(t, res.Error)
			assert.Nil(t, res.LatencyMs)

			stored, err := st.GetProxy(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, types.ProxyDie, stored.Status)
			assert.NotNil(t, stored.LastChecked)
			assert.Equal(t, "user", stored.Username, "only health fields change")
		})
	}
}

func TestCheckUnknownProxy(t *testing.T) {
	_, err := newChecker(t, memory.New(), nil).Check(context.Background(), 99)
	assert.True(t, errs.IsNotFound(err))
}

func TestCheckDecryptsCredentials(t *testing.T) {
	sealer, err := crypto.NewSealer("fleet passphrase")
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Proxy-Authorization") != want {
			w.WriteHeader(http.StatusProxyAuthRequired)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	host, port := splitHostPort(t, srv.Listener.Addr().String())

	st := memory.New()
	id := addProxy(t, st, types.Proxy{
		Host: host, Port: port, Type: types.ProxyHTTP, Active: true,
		Username: "alice", Password: sealed,
	})

	res, err := newChecker(t, st, sealer).Check(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.ProxyLive, res.Status)
}

func TestCheckAllSkipsInactive(t *testing.T) {
	st := memory.New()
	liveHost, livePort := fakeProxy(t, http.StatusNoContent)
	deadHost, deadPort := deadAddr(t)

	live := addProxy(t, st, types.Proxy{Host: liveHost, Port: livePort, Type: types.ProxyHTTP, Active: true})
	dead := addProxy(t, st, types.Proxy{Host: deadHost, Port: deadPort, Type: types.ProxyHTTP, Active: true})
	idle := addProxy(t, st, types.Proxy{Host: liveHost, Port: livePort, Type: types.ProxyHTTP, Active: false})

	results, err := newChecker(t, st, nil).CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int]types.ProxyStatus{}
	for _, r := range results {
		byID[r.ProxyID] = r.Status
	}
	assert.Equal(t, types.ProxyLive, byID[live])
	assert.Equal(t, types.ProxyDie, byID[dead])

	stored, err := st.GetProxy(context.Background(), idle)
	require.NoError(t, err)
	assert.Equal(t, types.ProxyUnknown, stored.Status)
}
