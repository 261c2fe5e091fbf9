package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/service"
)

// runPlain resolves every media entry of dir and prints one line per entry:
// name, state and cover URL separated by tabs.
func runPlain(
	ctx context.Context,
	w io.Writer,
	browse *service.BrowseService,
	covers *service.CoverService,
	dir, filter string,
) error {
	l, err := browse.Open(ctx, dir)
	if err != nil {
		return err
	}

	// The resolver knows gifs whose stored cover is a video thumbnail.
	var media []domain.Entry
	for _, e := range l.Entries {
		if covers.Resolver().Classify(e).HasCover() {
			media = append(media, e)
		}
	}
	entries := filterEntries(media, filter)
	events := covers.ResolveAll(ctx, entries)

	byKey := make(map[string]service.CoverEvent, len(events))
	for _, ev := range events {
		byKey[ev.Entry.Key()] = ev
	}
	for _, e := range entries {
		ev, ok := byKey[e.Key()]
		state := cover.StateUnresolved
		if ok {
			state = ev.State
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, state, ev.URL); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// filterEntries keeps entries whose name fuzzy matches filter, closest first.
func filterEntries(entries []domain.Entry, filter string) []domain.Entry {
	if filter == "" {
		return entries
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	ranks := fuzzy.RankFindFold(filter, names)
	sort.Sort(ranks)

	out := make([]domain.Entry, len(ranks))
	for i, r := range ranks {
		out[i] = entries[r.OriginalIndex]
	}
	return out
}
