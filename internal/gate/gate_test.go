package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideCrossProduct(t *testing.T) {
	protected := []string{"/journal", "/settings", "/profile"}
	paths := []struct {
		path      string
		protected bool
	}{
		{"/journal", true},
		{"/journal/2024-01-01", true},
		{"/settings/ai", true},
		{"/profile", true},
		{"/journalism", true},
		{"/", false},
		{"/about", false},
		{"/api/journal/entries", false},
		{"/auth/signin", false},
	}

	for _, p := range paths {
		for _, hasToken := range []bool{true, false} {
			want := Allow
			if p.protected && !hasToken {
				want = Deny
			}
			got := Decide(protected, p.path, hasToken)
			assert.Equal(t, want, got, "Decide(%q, %v)", p.path, hasToken)
		}
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Deny, Decide(DefaultProtected, "/settings", false))
	}
}

func TestPolicyExempt(t *testing.T) {
	policy := NewPolicy(DefaultProtected, DefaultExempt)

	cases := map[string]bool{
		"/auth/callback":         true,
		"/_next/static/chunk.js": true,
		"/favicon.ico":           true,
		"/public/logo.svg":       true,
		"/journal":               false,
		"/":                      false,
	}
	for path, want := range cases {
		assert.Equal(t, want, policy.IsExempt(path), path)
	}
}

func TestNewPolicyNormalizesPrefixes(t *testing.T) {
	policy := NewPolicy([]string{" journal ", "", "/settings"}, nil)

	assert.Equal(t, []string{"/journal", "/settings"}, policy.Protected)
	assert.True(t, policy.Protects("/journal/new"))
	assert.Equal(t, Deny, policy.Decide("/journal/new", false))
	assert.Equal(t, "deny", Deny.String())
	assert.Equal(t, "allow", Allow.String())
}
