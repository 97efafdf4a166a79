// Package models holds the valuation pipeline's value types: queries, observed
// sales, per-source results and the finished estimate.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxQueryLength bounds a normalized query in characters, mirroring the input limit of the
// public endpoint.
const MaxQueryLength = 200

// ErrInvalidQuery is returned for empty, whitespace-only or oversized queries.
var ErrInvalidQuery = errors.New("invalid query")

// Query is a normalized item description: trimmed, lower-cased and with
// internal whitespace collapsed. It is the cache identity of an estimate.
type Query string

// NormalizeQuery converts free text into a Query.
func NormalizeQuery(raw string) (Query, error) {
	q := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if q == "" {
		return "", fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return "", fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, MaxQueryLength)
	}
	return Query(q), nil
}

func (q Query) String() string {
	return string(q)
}

// Condition describes the state of a sold item.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionUsed    Condition = "used"
	ConditionUnknown Condition = "unknown"
)

// ParseCondition maps free text onto a Condition, defaulting to unknown.
func ParseCondition(s string) Condition {
	switch Condition(strings.ToLower(strings.TrimSpace(s))) {
	case ConditionNew:
		return ConditionNew
	case ConditionUsed:
		return ConditionUsed
	default:
		return ConditionUnknown
	}
}

// Observation is one evidenced sale. It is a value type; nothing in the
// pipeline mutates an Observation after an adapter produced it.
type Observation struct {
	ID        string
	Price     float64
	Title     string
	SoldAt    time.Time // zero when the source did not report a date
	Condition Condition
	Source    string
	URL       string
}

// PriceRange is the closed interval of prices backing an estimate.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range.
func (r PriceRange) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// Widen returns the smallest range holding both r and v.
func (r PriceRange) Widen(v float64) PriceRange {
	if r.Min == 0 && r.Max == 0 {
		return PriceRange{Min: v, Max: v}
	}
	return PriceRange{Min: min(r.Min, v), Max: max(r.Max, v)}
}
