package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// devPorts are front-end dev-server ports; pages served from one of
// these talk to the engine's default port instead.
var devPorts = map[string]struct{}{
	"3000": {},
	"4200": {},
	"5173": {},
	"8000": {},
}

const defaultEnginePort = "8080"

// ResolveEndpoint picks the websocket endpoint: an explicit override
// wins, otherwise the endpoint is derived from the page origin with
// the scheme mapped http->ws / https->wss.
func ResolveEndpoint(override, origin string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	var scheme string
	switch u.Scheme {
	case "http", "ws":
		scheme = "ws"
	case "https", "wss":
		scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	port := u.Port()
	if _, dev := devPorts[port]; dev || port == "" {
		port = defaultEnginePort
	}
	return scheme + "://" + net.JoinHostPort(host, port) + "/ws", nil
}
