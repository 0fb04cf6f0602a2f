package jwtauth

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/jwtauth/principal"
)

type clientIPContextKey struct{}
type principalContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Redeem uses it as
// the flood control identifier and audit events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// WithPrincipal attaches an authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, or the
// anonymous principal and false.
func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	if ctx == nil {
		return principal.Anonymous(), false
	}

	p, ok := ctx.Value(principalContextKey{}).(principal.Principal)
	if !ok {
		return principal.Anonymous(), false
	}
	return p, true
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
