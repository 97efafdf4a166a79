// Package sources defines the contract every external pricing source adapter
// implements and the failure taxonomy the orchestrator falls back on.
//
// Adapters never retry at the result level. A single Fetch call either returns a
// SourceResult or fails with a *SourceError; deciding whether to try another
// source, and when to try this one again, belongs to the orchestrator.
package sources

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pawnval/internal/valuation/models"
)

//go:generate mockgen -source=source.go -destination=mocks/source_mock.go -package=mocks

// Source is one external pricing source.
type Source interface {
	// Name is the stable label used in logs, metrics, cooldowns and estimates.
	Name() string
	// Fetch looks the query up. Implementations must honor ctx cancellation.
	Fetch(ctx context.Context, q models.Query) (*models.SourceResult, error)
}

// ParseRetryAfter reads a Retry-After header given either as delay-seconds or
// as an HTTP date. It returns zero when the header is absent or unparseable.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// CategoryForStatus maps an upstream HTTP status onto the taxonomy. It returns
// an empty category for 2xx statuses.
func CategoryForStatus(status int) Category {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status >= 500:
		return CategoryTransient
	default:
		return CategoryFatal
	}
}
