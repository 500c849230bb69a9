package mcpproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpauth/oauth-bridge/pkg/httpclient"
	"github.com/mcpauth/oauth-bridge/pkg/types"
)

func TestBearerCredential(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	req.Header.Set("Authorization", "Bearer abc123")
	cred, ok := BearerCredential(req)
	assert.True(t, ok)
	assert.Equal(t, "abc123", cred)

	req.Header.Set("Authorization", "Basic abc123")
	_, ok = BearerCredential(req)
	assert.False(t, ok)

	req.Header.Del("Authorization")
	_, ok = BearerCredential(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = BearerCredential(req)
	assert.False(t, ok)
}

// TestServeSSE_StreamsVerbatim covers SSE transparency: every byte the
// downstream writes, across several flushed chunks, reaches the client
// unmodified and in order.
func TestServeSSE_StreamsVerbatim(t *testing.T) {
	chunks := []string{"data: one\n\n", "data: two\n\n", "data: three\n\n"}

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer SECRET", r.Header.Get("Authorization"))

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			flusher.Flush()
		}
	}))
	defer downstream.Close()

	d := types.Downstream{Name: "linear", DownstreamURL: downstream.URL, AuthHeaderFormat: "Bearer"}
	forwarder := New(httpclient.New())

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarder.ServeSSE(w, r, d, "SECRET")
	}))
	defer proxy.Close()

	resp, err := http.Get(proxy.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 0, 64)
	buf := make([]byte, 32)
	for {
		n, readErr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if readErr != nil {
			break
		}
	}

	assert.Equal(t, "data: one\n\ndata: two\n\ndata: three\n\n", string(body))
}

// TestServeSSE_ClientCancellationStopsDownstreamPromptly covers cancellation:
// when the client disconnects mid-stream, the proxy stops reading from the
// downstream instead of leaking the connection.
func TestServeSSE_ClientCancellationStopsDownstreamPromptly(t *testing.T) {
	downstreamCanceled := make(chan struct{})

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: first\n\n"))
		flusher.Flush()

		select {
		case <-r.Context().Done():
			close(downstreamCanceled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer downstream.Close()

	d := types.Downstream{Name: "linear", DownstreamURL: downstream.URL, AuthHeaderFormat: "Bearer"}
	forwarder := New(httpclient.New())

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarder.ServeSSE(w, r, d, "SECRET")
	}))
	defer proxy.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxy.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 32)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	resp.Body.Close()
	cancel()

	select {
	case <-downstreamCanceled:
	case <-time.After(2 * time.Second):
		t.Fatal("downstream request was not canceled after client disconnect")
	}
}

func TestServeUnary_RelaysStatusAndBody(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token SECRET", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer downstream.Close()

	d := types.Downstream{Name: "github", DownstreamURL: downstream.URL, AuthHeaderFormat: "token"}
	forwarder := New(httpclient.New())

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarder.ServeUnary(w, r, d, "SECRET")
	}))
	defer proxy.Close()

	resp, err := http.Post(proxy.URL, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
