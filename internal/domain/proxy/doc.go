// Package proxy resolves library and manual proxies into tunnels and
// checks their health.
//
// A check issues a single GET through the proxy to a probe URL. Any 2xx or
// 3xx answer marks the proxy live; errors, timeouts and other statuses mark
// it die. Only the health fields of the record are written.
package proxy
