package browser

import (
	"testing"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	"github.com/stretchr/testify/assert"
)

func TestArgs(t *testing.T) {
	fp := fingerprint.Build(fingerprint.Config{ProfileID: 3, ScreenWidth: 1366, ScreenHeight: 768, Language: "de-DE"})
	tunnel := &proxy.Tunnel{Type: types.ProxySOCKS5, Host: "127.0.0.1", Port: 1080}

	args := Args(fp, tunnel)

	assert.Subset(t, args, baseArgs)
	assert.Contains(t, args, "--force-webrtc-ip-handling-policy=disable_non_proxied_udp")
	assert.Contains(t, args, "--proxy-server=socks5://127.0.0.1:1080")
	assert.Contains(t, args, "--window-size=1366,768")
	assert.Contains(t, args, "--lang=de-DE")
}

func TestArgsMainIPAndNoProxy(t *testing.T) {
	fp := fingerprint.Build(fingerprint.Config{WebRTCMainIP: true})

	args := Args(fp, nil)

	for _, a := range args {
		assert.NotContains(t, a, "webrtc-ip-handling")
		assert.NotContains(t, a, "--proxy-server")
	}
}

func TestSplitArg(t *testing.T) {
	tests := []struct {
		in, name, value string
		hasValue        bool
	}{
		{"--no-first-run", "no-first-run", "", false},
		{"--lang=en-US", "lang", "en-US", true},
		{"--proxy-server=http://h:1", "proxy-server", "http://h:1", true},
	}
	for _, tt := range tests {
		name, value, ok := splitArg(tt.in)
		assert.Equal(t, tt.name, name)
		assert.Equal(t, tt.value, value)
		assert.Equal(t, tt.hasValue, ok)
	}
}
