package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agjmills/drive/internal/logger"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

const rateLimitMessage = "Too many requests. Please try again later."

// RateLimiter throttles requests per client IP. Forwarding headers are only
// honored when the direct peer is a trusted proxy.
type RateLimiter struct {
	lmt     *limiter.Limiter
	trusted []*net.IPNet
}

// NewRateLimiter allows limit requests per window per client, as a burst.
func NewRateLimiter(limit int, window time.Duration, trustedCIDRs []string) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	lmt := tollbooth.NewLimiter(float64(limit)/window.Seconds(), &limiter.ExpirableOptions{
		DefaultExpirationTTL: window,
	})
	lmt.SetBurst(limit)
	lmt.SetMessage(rateLimitMessage)

	return &RateLimiter{
		lmt:     lmt,
		trusted: parseTrustedCIDRs(trustedCIDRs),
	}
}

// Middleware returns a middleware handler that rate limits requests
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r, rl.trusted)
		if httpErr := tollbooth.LimitByKeys(rl.lmt, []string{ip}); httpErr != nil {
			logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, httpErr.StatusCode, httpErr.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parseTrustedCIDRs parses a list of CIDR strings into net.IPNet objects.
// Bare IPs become single-host networks. Invalid entries are logged and skipped.
func parseTrustedCIDRs(cidrs []string) []*net.IPNet {
	var result []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err == nil {
			result = append(result, ipNet)
			continue
		}
		if ip := net.ParseIP(cidr); ip != nil {
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			result = append(result, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		logger.Warn("invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
	}
	return result
}

// hostOf strips the port from a RemoteAddr-style address.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func isIPInCIDRs(addr string, cidrs []*net.IPNet) bool {
	ip := net.ParseIP(hostOf(addr))
	if ip == nil {
		return false
	}
	for _, cidr := range cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// getClientIP prefers X-Real-IP, then the leftmost X-Forwarded-For entry,
// but only when the peer is a trusted proxy. Otherwise the peer address is
// the client.
func getClientIP(r *http.Request, trusted []*net.IPNet) string {
	if len(trusted) > 0 && isIPInCIDRs(r.RemoteAddr, trusted) {
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if clientIP := strings.TrimSpace(first); clientIP != "" {
				return clientIP
			}
		}
	}
	return hostOf(r.RemoteAddr)
}
