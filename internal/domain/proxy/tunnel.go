package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/crypto"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
	netproxy "golang.org/x/net/proxy"
)

// Tunnel is a resolved proxy with plaintext credentials, ready to hand to a
// browser or an HTTP transport.
type Tunnel struct {
	Type     types.ProxyType
	Host     string
	Port     int
	Username string
	Password string
}

// Resolve decrypts a library proxy into a Tunnel.
func Resolve(p *types.Proxy, sealer *crypto.Sealer) (*Tunnel, error) {
	password, err := sealer.Open(p.Password)
	if err != nil {
		return nil, fmt.Errorf("proxy %d: %w", p.ID, err)
	}

	t := &Tunnel{
		Type:     p.Type,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: password,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromManual builds a Tunnel from a proxy typed into a fingerprint.
func FromManual(m *fingerprint.ManualProxy) (*Tunnel, error) {
	t := &Tunnel{
		Type:     types.ProxyType(strings.ToLower(m.Type)),
		Host:     m.Host,
		Port:     m.Port,
		Username: m.Username,
		Password: m.Password,
	}
	if t.Type == "" {
		t.Type = types.ProxyHTTP
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate rejects tunnels no transport can use.
func (t *Tunnel) Validate() error {
	if !t.Type.Valid() {
		return errs.Validation("unsupported proxy type %q", t.Type)
	}
	if t.Host == "" {
		return errs.Validation("proxy host is required")
	}
	if t.Port < 1 || t.Port > 65535 {
		return errs.Validation("proxy port %d out of range", t.Port)
	}
	return nil
}

// Addr returns host:port.
func (t *Tunnel) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ServerArg is the value for Chromium's --proxy-server flag.
func (t *Tunnel) ServerArg() string {
	return string(t.Type) + "://" + t.Addr()
}

// HasCredentials reports whether the proxy requires authentication.
func (t *Tunnel) HasCredentials() bool {
	return t.Username != "" || t.Password != ""
}

// SupportsPageAuth reports whether credentials can be answered through the
// browser's auth challenge. Chromium never challenges for SOCKS5.
func (t *Tunnel) SupportsPageAuth() bool {
	return t.HasCredentials() && t.Type != types.ProxySOCKS5
}

// URL returns the proxy URL including credentials.
func (t *Tunnel) URL() *url.URL {
	u := &url.URL{Scheme: string(t.Type), Host: t.Addr()}
	if t.HasCredentials() {
		u.User = url.UserPassword(t.Username, t.Password)
	}
	return u
}

// String renders the tunnel without its password.
func (t *Tunnel) String() string {
	if t.Username != "" {
		return fmt.Sprintf("%s://%s@%s", t.Type, t.Username, t.Addr())
	}
	return t.ServerArg()
}

// Transport returns an HTTP transport that routes every request through
// the tunnel.
func (t *Tunnel) Transport(dialTimeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	if t.Type != types.ProxySOCKS5 {
		return &http.Transport{
			Proxy:               http.ProxyURL(t.URL()),
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: dialTimeout,
			DisableKeepAlives:   true,
		}, nil
	}

	var auth *netproxy.Auth
	if t.HasCredentials() {
		auth = &netproxy.Auth{User: t.Username, Password: t.Password}
	}
	socks, err := netproxy.SOCKS5("tcp", t.Addr(), auth, dialer)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}

	tr := &http.Transport{
		TLSHandshakeTimeout: dialTimeout,
		DisableKeepAlives:   true,
	}
	if cd, ok := socks.(netproxy.ContextDialer); ok {
		tr.DialContext = cd.DialContext
	} else {
		tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return socks.Dial(network, addr)
		}
	}
	return tr, nil
}
