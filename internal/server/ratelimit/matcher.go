package ratelimit

import (
	"strings"
)

var unlimited = &EndpointConfig{}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Exact paths win over prefixes; a config path ending in "/" matches every path
// below it. Health checks and event streams are never limited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" && (path == "/health" || strings.HasSuffix(path, "/events")) {
		return unlimited
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
