package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const lookupTimeout = 5 * time.Second

var ErrEmptyHost = errors.New("empty host")

// Resolver is the preflight check run before every HTTP attempt.
type Resolver interface {
	Resolve(ctx context.Context, host string) error
}

type ResolverFunc func(ctx context.Context, host string) error

func (f ResolverFunc) Resolve(ctx context.Context, host string) error {
	return f(ctx, host)
}

type NetResolver struct {
	resolver *net.Resolver
}

func NewResolver() *NetResolver {
	return &NetResolver{resolver: net.DefaultResolver}
}

func (r *NetResolver) Resolve(ctx context.Context, host string) error {
	if host == "" {
		return ErrEmptyHost
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := r.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no addresses for host %q", host)
	}

	return nil
}

// HostFromURL returns the host segment of scheme://host/..., or "" when the
// URL has no such segment. Userinfo and port are stripped.
func HostFromURL(raw string) string {
	parts := strings.Split(raw, "/")
	if len(parts) < 3 {
		return ""
	}

	host := parts[2]
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
