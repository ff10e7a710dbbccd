package moderation

import (
	"sort"
	"strings"
)

const defaultFlagReason = "Content violates community guidelines"

// FlagReason renders the human-readable reason for the categories marked
// true. Known categories keep their fixed order; unknown ones follow sorted
// and are reported by their raw key.
func FlagReason(categories map[string]bool) string {
	var reasons []string
	known := make(map[string]struct{}, len(Categories))

	for _, c := range Categories {
		known[c] = struct{}{}
		if categories[c] {
			reasons = append(reasons, categoryNames[c])
		}
	}

	var extra []string
	for c, flagged := range categories {
		if _, ok := known[c]; !ok && flagged {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	reasons = append(reasons, extra...)

	if len(reasons) == 0 {
		return defaultFlagReason
	}
	return "Message contains " + strings.Join(reasons, ", ")
}
