package dns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostFromURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"https", "https://example.com/path", "example.com"},
		{"no path", "http://example.com", "example.com"},
		{"with port", "http://127.0.0.1:8080/x", "127.0.0.1"},
		{"ipv6", "http://[::1]:8080/", "::1"},
		{"ipv6 no port", "http://[::1]/", "::1"},
		{"userinfo", "http://user:pw@example.com/", "example.com"},
		{"userinfo with port", "https://user@example.com:8443/x", "example.com"},
		{"malformed", "example.com", ""},
		{"empty", "", ""},
		{"scheme only", "https://", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HostFromURL(tt.raw))
		})
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver()

	assert.ErrorIs(t, r.Resolve(context.Background(), ""), ErrEmptyHost)
	assert.NoError(t, r.Resolve(context.Background(), "127.0.0.1"))
	assert.Error(t, r.Resolve(context.Background(), "does-not-exist.invalid"))
}

func TestResolverFunc(t *testing.T) {
	var got string
	r := ResolverFunc(func(ctx context.Context, host string) error {
		got = host
		return nil
	})

	assert.NoError(t, r.Resolve(context.Background(), "example.com"))
	assert.Equal(t, "example.com", got)
}
