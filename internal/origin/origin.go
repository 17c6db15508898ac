// Package origin implements the browser Origin allow-list shared by the
// WebSocket upgrade and the HTTP CORS middleware.
package origin

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates a browser Origin header value and returns it as
// scheme://host[:port] with default ports dropped, together with the
// host[:port] part.
func Normalize(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// canonicalHost lowercases authority and strips the scheme's default port.
func canonicalHost(authority, scheme string) (string, bool) {
	authority = strings.ToLower(strings.TrimSpace(authority))
	hostname, port := authority, ""
	if h, p, err := net.SplitHostPort(authority); err == nil {
		hostname, port = h, p
		if port == "" {
			return "", false
		}
	} else if strings.Count(authority, ":") > 0 && !strings.HasPrefix(authority, "[") {
		return "", false
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	if hostname == "" {
		return "", false
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		} else {
			port = strconv.FormatUint(n, 10)
		}
	}

	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port != "" {
		return hostname + ":" + port, true
	}
	return hostname, true
}

// Policy decides which browser origins may open signaling connections.
//
// An empty policy only admits same-host origins. A "*" entry admits any
// well-formed origin.
type Policy struct {
	any     bool
	allowed map[string]struct{}
}

// NewPolicy normalizes each configured origin and rejects malformed entries.
func NewPolicy(origins []string) (*Policy, error) {
	p := &Policy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			p.any = true
			continue
		}
		normalized, _, ok := Normalize(o)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q", o)
		}
		p.allowed[normalized] = struct{}{}
	}
	return p, nil
}

// Allows reports whether a normalized origin may talk to a server reached
// through requestHost.
func (p *Policy) Allows(normalized, originHost, requestHost string) bool {
	if p.any && normalized != "null" {
		return true
	}
	if len(p.allowed) > 0 {
		_, ok := p.allowed[normalized]
		return ok
	}

	// Same host only. The scheme is ignored so a TLS-terminating proxy in
	// front of the server does not break same-origin clients.
	scheme, _, found := strings.Cut(normalized, "://")
	if !found {
		return false
	}
	reqHost, ok := canonicalHost(requestHost, scheme)
	return ok && reqHost == originHost
}

// CheckRequest applies the policy to r. Requests without an Origin header come
// from non-browser clients and are allowed; normalized is empty for them.
func (p *Policy) CheckRequest(r *http.Request) (normalized string, ok bool) {
	header := r.Header.Get("Origin")
	if strings.TrimSpace(header) == "" {
		return "", true
	}
	normalized, host, valid := Normalize(header)
	if !valid {
		return "", false
	}
	return normalized, p.Allows(normalized, host, r.Host)
}
