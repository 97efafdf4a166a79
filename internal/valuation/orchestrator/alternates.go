package orchestrator

import (
	"strings"

	"pawnval/internal/valuation/models"
)

var (
	modelSuffixes = map[string]struct{}{
		"pro": {}, "max": {}, "mini": {}, "plus": {}, "ultra": {}, "se": {},
	}
	brands = map[string]struct{}{
		"apple": {}, "samsung": {}, "google": {}, "sony": {}, "lg": {}, "nike": {}, "adidas": {},
	}
)

// AlternateQueries derives broader phrasings of q for when every source came
// back empty: model suffixes stripped, brand stripped, and "iphone" generalized
// to "phone". At most limit distinct alternatives are returned, none equal to q.
func AlternateQueries(q models.Query, limit int) []models.Query {
	if limit <= 0 {
		return nil
	}
	words := strings.Fields(q.String())

	candidates := []string{
		joinWithout(words, modelSuffixes),
		joinWithout(words, brands),
	}
	if strings.Contains(q.String(), "iphone") {
		candidates = append(candidates, strings.Replace(q.String(), "iphone", "phone", 1))
	}

	seen := map[string]struct{}{q.String(): {}}
	var out []models.Query
	for _, c := range candidates {
		if len(c) <= 2 {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, models.Query(c))
		if len(out) == limit {
			break
		}
	}
	return out
}

func joinWithout(words []string, drop map[string]struct{}) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := drop[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
