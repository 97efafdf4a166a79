package guides

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pawnval/internal/valuation/models"
)

// Metal symbols understood by the quote client.
const (
	Gold   = "XAU"
	Silver = "XAG"
)

const (
	gramsPerTroyOunce  = 31.1035
	bullionConfidence  = 0.95
	bullionRangeSpread = 0.02
)

// Quoter returns the spot price of a metal in USD per troy ounce.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

var (
	fractionOzRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*(?:troy\s+)?(?:oz|ounces?)\b`)
	ounceRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:troy\s+)?(?:oz|ounces?)\b`)
	gramRe       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:g|grams?)\b`)
	kiloRe       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kg|kilos?)\b`)
)

var bullionWords = []string{"coin", "bar", "bullion", "round", "eagle", "maple", "krugerrand", "britannia", "philharmonic", "buffalo", "ingot"}

// Bullion values gold and silver coins and bars from the live spot price.
type Bullion struct {
	quoter Quoter
}

func NewBullion(q Quoter) *Bullion {
	return &Bullion{quoter: q}
}

func (b *Bullion) Category() string { return "bullion" }

func (b *Bullion) Lookup(ctx context.Context, q models.Query) (models.DirectEstimate, bool, error) {
	s := q.String()
	symbol := metalOf(s)
	if symbol == "" {
		return models.DirectEstimate{}, false, nil
	}
	oz, weighed := troyOunces(s)
	if !weighed && !containsAny(s, bullionWords) {
		return models.DirectEstimate{}, false, nil
	}

	spot, err := b.quoter.Quote(ctx, symbol)
	if err != nil {
		return models.DirectEstimate{}, false, err
	}
	value := spot * oz
	return models.DirectEstimate{
		MarketValue: value,
		Confidence:  bullionConfidence,
		DataPoints:  1,
		PriceRange:  spread(value, bullionRangeSpread),
		Category:    b.Category(),
		Note:        fmt.Sprintf("%s spot %.2f USD/ozt x %s ozt", symbol, spot, strconv.FormatFloat(oz, 'f', -1, 64)),
	}, true, nil
}

func metalOf(s string) string {
	switch {
	case strings.Contains(s, "gold"):
		return Gold
	case strings.Contains(s, "silver"):
		return Silver
	default:
		return ""
	}
}

// troyOunces parses the item weight. Without one the item is taken to weigh a
// single troy ounce.
func troyOunces(s string) (float64, bool) {
	if m := fractionOzRe.FindStringSubmatch(s); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if num > 0 && den > 0 {
			return num / den, true
		}
	}
	if m := ounceRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			return v, true
		}
	}
	if m := kiloRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			return v * 1000 / gramsPerTroyOunce, true
		}
	}
	if m := gramRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			return v / gramsPerTroyOunce, true
		}
	}
	return 1, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
