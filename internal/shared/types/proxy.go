package types

import "time"

// ProxyType is the transport used to reach a proxy.
type ProxyType string

const (
	ProxyHTTP   ProxyType = "http"
	ProxyHTTPS  ProxyType = "https"
	ProxySOCKS5 ProxyType = "socks5"
)

// Valid reports whether t is a supported transport.
func (t ProxyType) Valid() bool {
	switch t {
	case ProxyHTTP, ProxyHTTPS, ProxySOCKS5:
		return true
	}
	return false
}

// ProxyStatus is the last health check verdict.
type ProxyStatus string

const (
	ProxyLive     ProxyStatus = "live"
	ProxyDie      ProxyStatus = "die"
	ProxyChecking ProxyStatus = "checking"
	ProxyUnknown  ProxyStatus = "unknown"
)

// Proxy is a library proxy. Password holds the sealed credential.
type Proxy struct {
	ID          int         `json:"id"`
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Username    string      `json:"username,omitempty"`
	Password    string      `json:"password,omitempty"`
	Type        ProxyType   `json:"type"`
	Active      bool        `json:"active"`
	Status      ProxyStatus `json:"status"`
	LastChecked *time.Time  `json:"lastChecked,omitempty"`
	LatencyMs   *int64      `json:"latencyMs,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
