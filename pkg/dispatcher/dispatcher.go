// Package dispatcher builds the full HTTP surface described by the route
// table: it resolves the downstream name out of each request's path tail,
// looks it up in the registry, and invokes the authorization-server or MCP
// forwarder handler. Grounded on the teacher's pkg/proxy/proxy.go
// SetupRoutes (http.ServeMux with "{path...}" patterns, withCORS/
// withRateLimit middleware chaining) and GetHandler (gorilla/handlers
// access-log wrapping).
package dispatcher

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"

	"github.com/mcpauth/oauth-bridge/pkg/apierror"
	"github.com/mcpauth/oauth-bridge/pkg/authserver"
	"github.com/mcpauth/oauth-bridge/pkg/mcpproxy"
	"github.com/mcpauth/oauth-bridge/pkg/ratelimit"
	"github.com/mcpauth/oauth-bridge/pkg/registry"
)

const (
	rateLimitWindow = 15 * time.Minute
	rateLimitMax    = 5000
)

// New builds the complete http.Handler for the proxy: every route in §6,
// wrapped in CORS, rate limiting (auth-server endpoints only), and an
// access-log middleware.
func New(reg *registry.Registry, client *http.Client) http.Handler {
	auth := authserver.New(reg, client)
	forwarder := mcpproxy.New(client)
	limiter := ratelimit.New(rateLimitWindow, rateLimitMax)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", withCORS(healthHandler))

	// Preflight requests match none of the method-specific routes below, so
	// they get their own route; withCORS answers them with 204.
	mux.HandleFunc("OPTIONS /", withCORS(func(w http.ResponseWriter, r *http.Request) {}))

	mux.HandleFunc("GET /.well-known/oauth-protected-resource/{path...}", withCORS(func(w http.ResponseWriter, r *http.Request) {
		auth.ProtectedResourceMetadata(w, r, lastSegment(r.PathValue("path")))
	}))
	mux.HandleFunc("GET /.well-known/oauth-authorization-server/{path...}", withCORS(func(w http.ResponseWriter, r *http.Request) {
		auth.AuthorizationServerMetadata(w, r, lastSegment(r.PathValue("path")))
	}))

	mux.HandleFunc("GET /authorize/{path...}", withCORS(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Authorize(w, r, lastSegment(r.PathValue("path")))
	})).ServeHTTP))
	mux.HandleFunc("POST /authorize/{path...}", withCORS(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Authorize(w, r, lastSegment(r.PathValue("path")))
	})).ServeHTTP))
	mux.HandleFunc("GET /callback/{path...}", withCORS(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Callback(w, r, lastSegment(r.PathValue("path")))
	})).ServeHTTP))
	mux.HandleFunc("POST /token/{path...}", withCORS(limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Token(w, r, lastSegment(r.PathValue("path")))
	})).ServeHTTP))

	mux.HandleFunc("GET /mcp/{path...}", withCORS(func(w http.ResponseWriter, r *http.Request) {
		serveMCP(w, r, reg, forwarder, true)
	}))
	mux.HandleFunc("POST /mcp/{path...}", withCORS(func(w http.ResponseWriter, r *http.Request) {
		serveMCP(w, r, reg, forwarder, false)
	}))

	return handlers.LoggingHandler(os.Stdout, mux)
}

func serveMCP(w http.ResponseWriter, r *http.Request, reg *registry.Registry, forwarder *mcpproxy.Forwarder, sse bool) {
	name := lastSegment(r.PathValue("path"))

	cred, ok := mcpproxy.BearerCredential(r)
	if !ok {
		apierror.Unauthorized(w)
		return
	}

	d, ok := reg.Lookup(name)
	if !ok {
		apierror.NotFound(w)
		return
	}

	if sse {
		forwarder.ServeSSE(w, r, d, cred)
		return
	}
	forwarder.ServeUnary(w, r, d, cred)
}

// lastSegment resolves the downstream name out of a captured path tail: a
// single "github" for the direct /mcp/{path...} route, or "mcp/github" for
// every authorization-server endpoint, which echoes the full resource
// identifier after its own op prefix.
func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i != -1 {
		return path[i+1:]
	}
	return path
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// withCORS mirrors the teacher's withCORS: permissive cross-origin headers
// plus a short-circuited preflight response.
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, mcp-protocol-version")
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
