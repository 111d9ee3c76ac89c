package http

import (
	"net/url"
	"strings"
)

// EstimateView selects how estimate members are rendered.
type EstimateView int

const (
	// ViewAmounts renders each member as its amount.
	ViewAmounts EstimateView = iota
	// ViewFull renders each member as the stored transaction.
	ViewFull
)

// ParseUserID returns the trimmed user_id query parameter, with control
// characters removed.
func ParseUserID(query url.Values) string {
	return sanitizeInput(query.Get("user_id"))
}

// ParseView reads the view query parameter. Unknown values use ViewAmounts.
func ParseView(query url.Values) EstimateView {
	if strings.EqualFold(strings.TrimSpace(query.Get("view")), "full") {
		return ViewFull
	}
	return ViewAmounts
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
