// Package netutil picks a free listen address for the HTTP server.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// SelectBindAddr returns preferred when it can be bound. Otherwise, when
// autoFallback is set, it returns the first bindable candidate.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if IsAddrAvailable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("netutil: bind address in use: %s", preferred)
		}
	}
	for _, addr := range candidates {
		if IsAddrAvailable(addr) {
			return addr, nil
		}
	}
	return "", errors.New("netutil: no available bind address")
}

// IsAddrAvailable reports whether addr can be listened on right now.
func IsAddrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// Candidates expands a comma separated port list into addresses on host.
// Entries that already contain a colon are kept as is.
func Candidates(host, list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.Contains(p, ":"):
			out = append(out, p)
		default:
			out = append(out, net.JoinHostPort(host, p))
		}
	}
	return out
}
