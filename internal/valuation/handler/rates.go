package handler

import (
	"fmt"
	"strconv"
	"strings"

	"pawnval/internal/valuation/models"
	pstrings "pawnval/pkg/platform/strings"
)

// PawnRates resolves the loan-to-value ratio for a tenant.
type PawnRates struct {
	Default  float64
	ByTenant map[string]float64
}

// For returns the tenant's ratio, or the default for unknown or empty tenants.
func (p PawnRates) For(tenant string) float64 {
	if r, ok := p.ByTenant[strings.ToLower(tenant)]; ok {
		return r
	}
	if p.Default <= 0 {
		return models.DefaultPawnPercentage
	}
	return p.Default
}

// ParseTenantRates parses "acme=0.35,beta=0.4". Every ratio must lie in (0,1].
func ParseTenantRates(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range pstrings.SplitList(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("tenant rate %q: expected tenant=ratio", pair)
		}
		r, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("tenant rate %q: %w", pair, err)
		}
		if r <= 0 || r > 1 {
			return nil, fmt.Errorf("tenant rate %q: ratio must be in (0,1]", pair)
		}
		out[name] = r
	}
	return out, nil
}
