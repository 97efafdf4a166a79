// Package metadata captures caller metadata (client address, User-Agent,
// tenant) into the request context.
package metadata

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/mssola/useragent"

	"pawnval/pkg/requestcontext"
)

// TenantHeader names the tenant a request is made on behalf of.
const TenantHeader = "X-Tenant-ID"

// Client kinds derived from the User-Agent.
const (
	KindBrowser = "browser"
	KindMobile  = "mobile"
	KindBot     = "bot"
	KindOther   = "other"
)

var tenantRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, ClassifyUserAgent(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Tenant stores the tenant named by TenantHeader. Malformed identifiers are
// ignored and the request proceeds as tenant-less.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.ToLower(strings.TrimSpace(r.Header.Get(TenantHeader)))
		if tenantRe.MatchString(tenant) {
			r = r.WithContext(requestcontext.WithTenantID(r.Context(), tenant))
		}
		next.ServeHTTP(w, r)
	})
}

// ClassifyUserAgent reduces a User-Agent string to a coarse client kind.
func ClassifyUserAgent(s string) string {
	if strings.TrimSpace(s) == "" {
		return KindOther
	}
	ua := useragent.New(s)
	switch {
	case ua.Bot():
		return KindBot
	case ua.Mobile():
		return KindMobile
	}
	if name, _ := ua.Browser(); name != "" && ua.OS() != "" {
		return KindBrowser
	}
	return KindOther
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For lists client, proxy1, proxy2, ...
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
