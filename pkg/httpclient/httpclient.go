// Package httpclient builds the single pooled, connection-reusing HTTP
// client shared by the chained-OAuth code-exchange logic and the MCP
// forwarder. Grounded on go-core-stack-mcp-auth-proxy's pkg/proxy/proxy.go
// New(), which builds an http.Transport tuned for a long-lived proxy rather
// than relying on http.DefaultClient.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New returns a client configured for keep-alive reuse across many
// downstream hosts, with HTTP/2 enabled where the downstream supports it.
func New() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
