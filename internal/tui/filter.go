package tui

import (
	"strings"

	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/sahilm/fuzzy"
)

// filteredRow is one displayed row with the matched rune positions of its name.
type filteredRow struct {
	Entry   domain.Entry
	Matched []int
}

// filterEntries returns the entries matching query, best match first.
// An empty query keeps the listing order.
func filterEntries(entries []domain.Entry, query string) []filteredRow {
	query = strings.TrimSpace(query)
	if query == "" {
		rows := make([]filteredRow, len(entries))
		for i, e := range entries {
			rows[i] = filteredRow{Entry: e}
		}
		return rows
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = strings.ToLower(e.Name)
	}
	matches := fuzzy.Find(strings.ToLower(query), names)

	rows := make([]filteredRow, len(matches))
	for i, m := range matches {
		rows[i] = filteredRow{Entry: entries[m.Index], Matched: m.MatchedIndexes}
	}
	return rows
}
