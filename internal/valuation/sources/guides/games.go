package guides

import (
	"context"
	"fmt"
	"strings"

	"pawnval/internal/valuation/models"
	pstrings "pawnval/pkg/platform/strings"
)

// GameEntry is one title or console in the games table.
type GameEntry struct {
	Name       string
	UsedPrice  float64
	Confidence float64
}

// DefaultGames is the built-in used-price table for retro and current titles
// and consoles.
var DefaultGames = []GameEntry{
	{Name: "super mario bros", UsedPrice: 25, Confidence: 0.95},
	{Name: "legend of zelda", UsedPrice: 35, Confidence: 0.95},
	{Name: "pokemon red", UsedPrice: 45, Confidence: 0.9},
	{Name: "pokemon blue", UsedPrice: 45, Confidence: 0.9},
	{Name: "super mario 64", UsedPrice: 40, Confidence: 0.9},
	{Name: "ocarina of time", UsedPrice: 50, Confidence: 0.9},
	{Name: "call of duty", UsedPrice: 25, Confidence: 0.8},
	{Name: "fifa", UsedPrice: 30, Confidence: 0.8},
	{Name: "madden", UsedPrice: 30, Confidence: 0.8},
	{Name: "grand theft auto", UsedPrice: 35, Confidence: 0.85},
	{Name: "nintendo switch", UsedPrice: 200, Confidence: 0.9},
	{Name: "playstation 5", UsedPrice: 400, Confidence: 0.9},
	{Name: "xbox series x", UsedPrice: 400, Confidence: 0.9},
	{Name: "nintendo 64", UsedPrice: 80, Confidence: 0.85},
	{Name: "gamecube", UsedPrice: 60, Confidence: 0.85},
	{Name: "playstation 2", UsedPrice: 40, Confidence: 0.85},
}

const (
	gameMatchThreshold = 0.6
	gameRangeSpread    = 0.2
)

// Games matches queries against a table of video games and consoles.
type Games struct {
	entries []GameEntry
}

// NewGames creates a guide over entries; nil selects DefaultGames.
func NewGames(entries []GameEntry) *Games {
	if entries == nil {
		entries = DefaultGames
	}
	return &Games{entries: entries}
}

func (g *Games) Category() string { return "video_games" }

func (g *Games) Lookup(_ context.Context, q models.Query) (models.DirectEstimate, bool, error) {
	words := pstrings.Words(q.String())
	var best *GameEntry
	bestScore := 0.0
	for i := range g.entries {
		e := &g.entries[i]
		score := similarity(words, pstrings.Words(e.Name))
		if score > gameMatchThreshold && score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return models.DirectEstimate{}, false, nil
	}
	return models.DirectEstimate{
		MarketValue: best.UsedPrice,
		Confidence:  best.Confidence,
		DataPoints:  1,
		PriceRange:  spread(best.UsedPrice, gameRangeSpread),
		Category:    g.Category(),
		Note:        fmt.Sprintf("video game guide: %s", best.Name),
	}, true, nil
}

// similarity counts word pairs where one word contains the other, relative to
// the longer word list. Words shorter than three characters only match exactly.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := 0
	for _, x := range a {
		for _, y := range b {
			if x == y || (len(x) >= 3 && len(y) >= 3 && (strings.Contains(x, y) || strings.Contains(y, x))) {
				matches++
			}
		}
	}
	return float64(matches) / float64(max(len(a), len(b)))
}
