package browser

import (
	"fmt"
	"strings"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
)

var baseArgs = []string{
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-blink-features=AutomationControlled",
	"--disable-session-crashed-bubble",
	"--disable-infobars",
	"--disable-notifications",
}

// Args builds the Chromium switches for a profile launch.
func Args(fp fingerprint.Fingerprint, tunnel *proxy.Tunnel) []string {
	args := append([]string(nil), baseArgs...)

	if !fp.WebRTC.UseMainIP {
		args = append(args, "--force-webrtc-ip-handling-policy=disable_non_proxied_udp")
	}
	if tunnel != nil {
		args = append(args, "--proxy-server="+tunnel.ServerArg())
	}
	if fp.Screen.Width > 0 && fp.Screen.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", fp.Screen.Width, fp.Screen.Height))
	}
	if fp.Language != "" {
		args = append(args, "--lang="+fp.Language)
	}
	return args
}

// splitArg turns "--name=value" into its parts.
func splitArg(arg string) (name, value string, hasValue bool) {
	return strings.Cut(strings.TrimLeft(arg, "-"), "=")
}
