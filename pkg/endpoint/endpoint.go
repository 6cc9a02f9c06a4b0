// Package endpoint implements component A: parsing and comparing
// host:port endpoints, and deciding when one of them names the current
// process. Grounded on _examples/original_source/util/hostandport.h,
// which keeps the same "default port, first-label host compare" shape.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/shardset/shardset/pkg/errs"
)

// DefaultPort is used when an endpoint string omits ":port".
const DefaultPort = 27018

// localAliases are hostnames that always resolve to this machine,
// regardless of the configured hostname.
var localAliases = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Endpoint is an immutable (host, port) pair. The zero value is invalid;
// use Parse or New.
type Endpoint struct {
	host string
	port int
}

// New builds an Endpoint directly, rejecting an empty host or a
// non-positive port.
func New(host string, port int) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, errs.New(errs.BadInput, "endpoint.New", nil, map[string]any{"host": host})
	}
	if port <= 0 {
		return Endpoint{}, errs.New(errs.BadInput, "endpoint.New", nil, map[string]any{"port": port})
	}
	return Endpoint{host: host, port: port}, nil
}

// Parse parses "host" or "host:port". A bare host gets DefaultPort.
func Parse(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, errs.New(errs.BadInput, "endpoint.Parse", nil, map[string]any{"input": s})
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No ":port" present — treat the whole string as a bare host.
		return New(s, DefaultPort)
	}

	if host == "" {
		return Endpoint{}, errs.New(errs.BadInput, "endpoint.Parse", nil, map[string]any{"input": s})
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, errs.New(errs.BadInput, "endpoint.Parse", err, map[string]any{"input": s})
	}
	return New(host, port)
}

// Host returns the endpoint's host label.
func (e Endpoint) Host() string { return e.host }

// Port returns the endpoint's port.
func (e Endpoint) Port() int { return e.port }

// String renders "host:port".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.host, e.port)
}

// Equal compares two endpoints literally: host strings byte-for-byte
// and ports numerically. This is stricter than SameHost.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.host == o.host && e.port == o.port
}

// firstLabel returns the portion of a host before its first dot,
// lower-cased. "node1.cluster.local" -> "node1".
func firstLabel(host string) string {
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// SameHost is a weaker predicate than Equal: it compares only the label
// before the first dot, so "node1" and "node1.cluster.local" match.
func (e Endpoint) SameHost(o Endpoint) bool {
	return firstLabel(e.host) == firstLabel(o.host)
}

// IsLocalAlias reports whether the endpoint's host is one of the
// well-known local-host aliases (localhost, 127.0.0.1, ::1).
func (e Endpoint) IsLocalAlias() bool {
	return localAliases[strings.ToLower(e.host)]
}

// Less orders endpoints lexicographically on host, then numerically on
// port, matching §4.A's ordering rule.
func (e Endpoint) Less(o Endpoint) bool {
	if e.host != o.host {
		return e.host < o.host
	}
	return e.port < o.port
}

// Identity decides whether an Endpoint, as reported by some peer or read
// from configuration, names the current process. It is satisfied when
// the port matches the process's listening port AND the host matches
// either the local hostname (by first label) or a local-host alias.
type Identity struct {
	processPort int
	hostname    Endpoint
}

// NewIdentity builds an Identity for the current process. hostname is
// typically os.Hostname() parsed with a bare host (default port ignored
// for comparisons — only SameHost is used against it).
func NewIdentity(processPort int, hostname string) Identity {
	h, _ := New(normalizeHostname(hostname), DefaultPort)
	return Identity{processPort: processPort, hostname: h}
}

func normalizeHostname(h string) string {
	if h == "" {
		return "localhost"
	}
	return h
}

// IsSelf reports whether e names this process: the port must equal the
// process's listening port, and the host must match either the local
// hostname (by first label) or a local-host alias.
func (id Identity) IsSelf(e Endpoint) bool {
	if e.port != id.processPort {
		return false
	}
	return e.IsLocalAlias() || e.SameHost(id.hostname)
}
