// Package mcpproxy forwards MCP traffic to a single downstream: a streaming
// GET for the SSE channel and a unary POST for JSON-RPC calls. Grounded on
// go-core-stack-mcp-auth-proxy's pkg/proxy/proxy.go, in particular its
// io.Copy streaming loop, hop-header stripping, and X-Forwarded-* header
// augmentation; combined with the teacher's reverse-proxy conventions for
// rewriting the outbound auth header per downstream.
package mcpproxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcpauth/oauth-bridge/pkg/headerremap"
	"github.com/mcpauth/oauth-bridge/pkg/types"
)

var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Forwarder proxies requests to downstream MCP servers over a shared client.
type Forwarder struct {
	client *http.Client
}

// New returns a Forwarder using client for all outbound downstream calls.
func New(client *http.Client) *Forwarder {
	return &Forwarder{client: client}
}

// BearerCredential extracts the credential from an inbound
// "Authorization: Bearer <token>" header. Returns ok=false on a missing or
// malformed header.
func BearerCredential(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	cred := strings.TrimPrefix(h, prefix)
	if cred == "" {
		return "", false
	}
	return cred, true
}

// ServeSSE implements the GET /mcp/<name> path: a verbatim, unbuffered
// streaming passthrough of the downstream's event-stream body.
func (f *Forwarder) ServeSSE(w http.ResponseWriter, r *http.Request, d types.Downstream, cred string) {
	event := log.With().Str("component", "mcpproxy").Str("downstream", d.Name).Logger()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, d.DownstreamURL, nil)
	if err != nil {
		event.Error().Err(err).Msg("failed to build downstream request")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	headerremap.Apply(req, d.AuthHeaderFormat, cred)
	req.Header.Set("Accept", "text/event-stream")
	augmentForwardHeaders(req.Header, r)

	resp, err := f.client.Do(req)
	if err != nil {
		event.Error().Err(err).Msg("downstream SSE connection failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			event.Error().Err(err).Msg("close downstream response body failed")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		event.Warn().Int("status", resp.StatusCode).Msg("downstream rejected SSE request")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamVerbatim(w, resp.Body, flusher, event)
}

// streamVerbatim copies src to dst a chunk at a time, flushing after every
// chunk so SSE framing reaches the client as soon as it arrives downstream.
func streamVerbatim(dst io.Writer, src io.Reader, flusher http.Flusher, event zerolog.Logger) {
	buf := make([]byte, 4096)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				event.Info().Err(writeErr).Msg("client disconnected mid-stream")
				return
			}
			flusher.Flush()
		}
		if readErr != nil {
			if readErr != io.EOF {
				event.Info().Err(readErr).Msg("downstream stream ended with error")
			}
			return
		}
	}
}

// ServeUnary implements the POST /mcp/<name> path: forward the JSON-RPC
// request body and relay the downstream's status, content type, and body.
func (f *Forwarder) ServeUnary(w http.ResponseWriter, r *http.Request, d types.Downstream, cred string) {
	event := log.With().Str("component", "mcpproxy").Str("downstream", d.Name).Logger()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, d.DownstreamURL, r.Body)
	if err != nil {
		event.Error().Err(err).Msg("failed to build downstream request")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	headerremap.Apply(req, d.AuthHeaderFormat, cred)
	req.Header.Set("Content-Type", "application/json")
	augmentForwardHeaders(req.Header, r)

	resp, err := f.client.Do(req)
	if err != nil {
		event.Error().Err(err).Msg("downstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			event.Error().Err(err).Msg("close downstream response body failed")
		}
	}()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		event.Info().Err(err).Msg("failed to relay downstream response body")
	}
}

// augmentForwardHeaders cleans hop-by-hop headers and attaches the
// X-Forwarded-Host and X-Forwarded-Proto headers, mirroring go-core-stack's
// augmentForwardHeaders.
func augmentForwardHeaders(h http.Header, r *http.Request) {
	for k := range hopHeaders {
		h.Del(k)
	}
	h.Set("X-Forwarded-Host", r.Host)
	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}
}
