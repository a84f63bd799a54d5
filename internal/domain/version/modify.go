package version

import (
	"net"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

const debuggerURLKey = "webSocketDebuggerUrl"

// RewriteHost replaces the host of webSocketDebuggerUrl with hostname,
// keeping the port and every other field. The body is returned unchanged
// when it is not a JSON object with a parseable URL.
func RewriteHost(body []byte, hostname string) []byte {
	if hostname == "" {
		return body
	}

	root, err := sonic.Get(body)
	if err != nil {
		return body
	}

	node := root.Get(debuggerURLKey)
	if node == nil || !node.Exists() {
		return body
	}
	raw, err := node.String()
	if err != nil || raw == "" {
		return body
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return body
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(hostname, port)
	} else {
		u.Host = hostname
	}

	if _, err := root.Set(debuggerURLKey, ast.NewString(u.String())); err != nil {
		return body
	}

	out, err := root.MarshalJSON()
	if err != nil {
		return body
	}
	return out
}
