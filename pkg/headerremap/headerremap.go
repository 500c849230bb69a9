// Package headerremap translates an inbound bearer credential into the
// header a downstream MCP server expects, per the auth_header_format table
// on each downstream definition. Grounded on the teacher's setHeaders
// (pkg/proxy/proxy.go) and go-core-stack-mcp-auth-proxy's
// augmentForwardHeaders, both of which rewrite the outbound Authorization
// header rather than forwarding the client's header verbatim.
package headerremap

import "net/http"

const (
	FormatBearer = "Bearer"
	FormatToken  = "token"
	FormatBasic  = "Basic"
)

// Apply sets the outbound header on req for credential cred, according to
// format. Any format other than Bearer, token, or Basic is treated as an
// arbitrary header name carrying the raw credential value.
func Apply(req *http.Request, format, cred string) {
	switch format {
	case FormatBearer:
		req.Header.Set("Authorization", "Bearer "+cred)
	case FormatToken:
		req.Header.Set("Authorization", "token "+cred)
	case FormatBasic:
		req.Header.Set("Authorization", "Basic "+cred)
	default:
		req.Header.Set(format, cred)
	}
}
