package transport

import (
	"fmt"
	"strings"
)

// DefaultPort is the port used when none is given.
const DefaultPort = 3000

// resolveHost builds the base URL for a host and port.
//
// A host that already carries an http or https scheme is taken as-is;
// the port is inserted only when the authority part does not name one.
// A bare hostname or IP becomes http://host:port.
func resolveHost(host string, port int) string {
	if port <= 0 {
		port = DefaultPort
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		schemeEnd := strings.Index(host, "://") + 3
		scheme, rest := host[:schemeEnd], host[schemeEnd:]
		authority, path := rest, ""
		if i := strings.Index(rest, "/"); i >= 0 {
			authority, path = rest[:i], rest[i:]
		}
		if strings.Contains(authority, ":") {
			return host
		}
		return fmt.Sprintf("%s%s:%d%s", scheme, authority, port, path)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
