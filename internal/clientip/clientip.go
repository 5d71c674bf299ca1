// Package clientip resolves the client IP for an inbound request under one
// of three policies: the raw socket peer, the rightmost entry of
// X-Forwarded-For, or (when the socket peer is in a configured trust list)
// the leftmost valid X-Forwarded-For entry. It is reconstructed from the teacher's
// middlewares/realip test-revealed contract (New, WithTrustedProxies,
// WithOptions, FromContext/Get) since no realip.go implementation survived
// retrieval, only its tests.
package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/bltavares/aricanduva/internal/config"
)

type ctxKey struct{}

// Options configures extraction behavior.
type Options struct {
	Policy         config.IPExtraction
	TrustedProxies []string // CIDRs or bare IPs trusted to set X-Forwarded-For
}

// Middleware returns a standard net/http middleware
// (func(http.Handler) http.Handler) so it can wrap the dispatcher's base
// mux independent of the httpkit.Ctx layer, mirroring the teacher's realip
// middleware which wraps at the stdlib http.Handler boundary.
func Middleware(opts Options) func(http.Handler) http.Handler {
	nets := parseNets(opts.TrustedProxies)
	policy := opts.Policy
	if policy == "" {
		policy = config.IPExtractionPeer
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolve(r, policy, nets)
			ctx := context.WithValue(r.Context(), ctxKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the client IP previously stored by Middleware, or ""
// if none was stored.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKey{}).(string)
	return ip
}

// Get is an alias for FromContext taking a *http.Request, mirroring the
// teacher's Get(c) convenience accessor.
func Get(r *http.Request) string {
	return FromContext(r.Context())
}

// Resolve extracts the client IP from r under opts, without going through
// Middleware/FromContext. Handlers that already hold the *http.Request
// directly (rather than reading it back out of a request context) can call
// this instead of wrapping the whole handler chain in Middleware.
func Resolve(r *http.Request, opts Options) string {
	policy := opts.Policy
	if policy == "" {
		policy = config.IPExtractionPeer
	}
	return resolve(r, policy, parseNets(opts.TrustedProxies))
}

func resolve(r *http.Request, policy config.IPExtraction, trusted []*net.IPNet) string {
	peer := extractIP(r.RemoteAddr)

	switch policy {
	case config.IPExtractionRightmostXFF:
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := rightmostIP(xff); ip != "" {
				return ip
			}
		}
		return peer

	case config.IPExtractionLeftmostTrustedXFF:
		if !isTrusted(peer, trusted) {
			return peer
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := extractFirstIP(xff); ip != "" {
				return ip
			}
		}
		return peer

	default: // config.IPExtractionPeer
		return peer
	}
}

// extractFirstIP returns the leftmost valid IP in a comma-separated
// X-Forwarded-For header value, or "" if none parse.
func extractFirstIP(header string) string {
	for _, part := range strings.Split(header, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}

// rightmostIP returns the rightmost valid IP in a comma-separated
// X-Forwarded-For header value, or "" if none parse.
func rightmostIP(header string) string {
	parts := strings.Split(header, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(parts[i])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}

// extractIP strips an optional port from a host:port address.
func extractIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isTrusted(ip string, networks []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func parseNets(cidrsOrIPs []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range cidrsOrIPs {
		if _, n, err := net.ParseCIDR(s); err == nil {
			out = append(out, n)
			continue
		}
		if ip := net.ParseIP(s); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return out
}

// privateBlocks are the ranges classified as private/loopback for auto-mode
// dispatch (spec: IPv4 10/8, 172.16/12, 192.168/16, 127/8, link-local
// 169.254/16; IPv6 fc00::/7, fe80::/10, ::1).
var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// IsPrivate reports whether ip falls in a private or loopback range, used
// by the auto mode policy to decide between proxy-like and redirect-like
// object serving.
func IsPrivate(ip string) bool {
	return isTrusted(ip, privateBlocks)
}
