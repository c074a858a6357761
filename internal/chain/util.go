package chain

import "strings"

// DefaultWSEndpoint derives a websocket URL from an HTTP RPC endpoint.
func DefaultWSEndpoint(rpc string) string {
	rpc = strings.TrimRight(strings.TrimSpace(rpc), "/")
	switch {
	case strings.HasPrefix(rpc, "ws://"), strings.HasPrefix(rpc, "wss://"):
		return rpc
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return ""
}

// WSEndpoints returns the configured websocket endpoints, falling back to
// ones derived from the RPC endpoints.
func WSEndpoints(configured, rpcEndpoints []string) []string {
	if list := sanitizeEndpoints(configured); len(list) > 0 {
		return list
	}
	derived := make([]string, 0, len(rpcEndpoints))
	for _, ep := range rpcEndpoints {
		if ws := DefaultWSEndpoint(ep); ws != "" {
			derived = append(derived, ws)
		}
	}
	return sanitizeEndpoints(derived)
}
