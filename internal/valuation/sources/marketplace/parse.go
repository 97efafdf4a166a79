package marketplace

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"pawnval/internal/valuation/models"
)

// listing is one parsed result card before filtering.
type listing struct {
	ID        string
	Title     string
	PriceText string
	DateText  string
	URL       string
}

var (
	priceRe    = regexp.MustCompile(`[$£€]?\s*(\d[\d,]*(?:\.\d+)?)`)
	agoRe      = regexp.MustCompile(`(\d+)\s+(day|week|month)s?\s+ago`)
	newRe      = regexp.MustCompile(`\bnew\b`)
	itemIDRe   = regexp.MustCompile(`/itm/(?:[^/?]+/)?(\d+)`)
	spaceRe    = regexp.MustCompile(`\s+`)
	soldPrefix = regexp.MustCompile(`(?i)^sold\s+`)
)

var placeholderTitles = []string{"shop on ebay", "click here", "see details", "view item"}

func parseListings(r io.Reader) ([]listing, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []listing
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "s-item") {
			out = append(out, readCard(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func readCard(card *html.Node) listing {
	var l listing
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case l.PriceText == "" && hasClass(n, "s-item__price"):
				l.PriceText = text(n)
			case l.Title == "" && hasClass(n, "s-item__title"):
				l.Title = text(n)
			case l.DateText == "" && (hasClass(n, "s-item__caption") || hasClass(n, "s-item__title--tagblock")):
				l.DateText = text(n)
			case l.URL == "" && hasClass(n, "s-item__link"):
				l.URL = attr(n, "href")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(card)
	if m := itemIDRe.FindStringSubmatch(l.URL); m != nil {
		l.ID = m[1]
	}
	return l
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(spaceRe.ReplaceAllString(sb.String(), " "))
}

// parsePrice returns the first amount in s. Ranges such as "$10.00 to $20.00"
// yield the lower bound.
func parsePrice(s string) (float64, bool) {
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseSoldDate understands absolute caption dates and the relative forms the
// marketplace uses for recent sales. Unrecognized text leaves the sale undated.
func parseSoldDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(soldPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
	lower := strings.ToLower(s)
	switch {
	case s == "":
		return time.Time{}
	case strings.Contains(lower, "today"):
		return now
	case strings.Contains(lower, "yesterday"):
		return now.AddDate(0, 0, -1)
	}
	if m := agoRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "day":
			return now.AddDate(0, 0, -n)
		case "week":
			return now.AddDate(0, 0, -7*n)
		case "month":
			return now.AddDate(0, -n, 0)
		}
	}
	for _, layout := range []string{"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func inferCondition(title string) models.Condition {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "like new"),
		strings.Contains(t, "used"),
		strings.Contains(t, "pre-owned"),
		strings.Contains(t, "refurbished"),
		strings.Contains(t, "for parts"):
		return models.ConditionUsed
	case newRe.MatchString(t):
		return models.ConditionNew
	default:
		return models.ConditionUnknown
	}
}

func isPlaceholder(title string) bool {
	t := strings.ToLower(title)
	if t == "" {
		return true
	}
	for _, p := range placeholderTitles {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
