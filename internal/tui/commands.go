package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/service"
)

const listingTimeout = 30 * time.Second

// Command factories for async operations

// LoadListingCmd lists a directory. focus names the entry to select once the
// listing arrives.
func LoadListingCmd(svc *service.BrowseService, dir, focus string, reload bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), listingTimeout)
		defer cancel()

		open := svc.Open
		if reload {
			open = svc.Reload
		}
		listing, err := open(ctx, dir)
		if err != nil {
			return ErrMsg{Err: err, Context: "listing " + dir}
		}
		return ListingLoadedMsg{Listing: listing, Focus: focus}
	}
}

// ListenCoversCmd reads the next cover event. The update loop re-issues it
// after every event, so exactly one reader is pending at a time.
func ListenCoversCmd(svc *service.CoverService) tea.Cmd {
	return func() tea.Msg {
		return CoverEventMsg{Event: <-svc.Events()}
	}
}

// PlayCmd opens a media entry in the external player
func PlayCmd(svc *service.PlaybackService, e domain.Entry) tea.Cmd {
	return func() tea.Msg {
		if err := svc.Play(e); err != nil {
			return ErrMsg{Err: err, Context: "play " + e.Name}
		}
		return nil
	}
}

// ViewCoverCmd opens the resolved cover of an entry in the image viewer
func ViewCoverCmd(svc *service.PlaybackService, e domain.Entry) tea.Cmd {
	return func() tea.Msg {
		if err := svc.ViewCover(e); err != nil {
			return ErrMsg{Err: err, Context: "cover of " + e.Name}
		}
		return nil
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}
