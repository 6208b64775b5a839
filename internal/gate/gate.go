// Package gate decides whether a request path needs an authenticated session.
package gate

import "strings"

// Decision is the outcome of the gate for one request.
type Decision int

const (
	Allow Decision = iota
	Deny
)

func (d Decision) String() string {
	if d == Deny {
		return "deny"
	}
	return "allow"
}

// DefaultProtected and DefaultExempt are the prefixes used when none are
// configured. Exempt paths never reach Decide.
var (
	DefaultProtected = []string{"/journal", "/settings", "/profile"}
	DefaultExempt    = []string{"/auth", "/_next/static", "/_next/image", "/static", "/assets", "/favicon.ico", "/public"}
)

// Decide is the access predicate. A path under any protected prefix is
// allowed only when a valid token is present; every other path is allowed.
func Decide(protected []string, path string, hasToken bool) Decision {
	if !matchesAny(protected, path) {
		return Allow
	}
	if hasToken {
		return Allow
	}
	return Deny
}

// Policy pairs the protected prefixes with the exemption list.
type Policy struct {
	Protected []string
	Exempt    []string
}

// NewPolicy trims blank prefixes and makes every prefix start with a slash.
func NewPolicy(protected, exempt []string) Policy {
	return Policy{Protected: normalize(protected), Exempt: normalize(exempt)}
}

// IsExempt reports whether path bypasses the gate entirely.
func (p Policy) IsExempt(path string) bool {
	return matchesAny(p.Exempt, path)
}

// Protects reports whether path falls under a protected prefix.
func (p Policy) Protects(path string) bool {
	return matchesAny(p.Protected, path)
}

// Decide applies Decide with the policy's protected prefixes.
func (p Policy) Decide(path string, hasToken bool) Decision {
	return Decide(p.Protected, path, hasToken)
}

func matchesAny(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func normalize(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		out = append(out, prefix)
	}
	return out
}
