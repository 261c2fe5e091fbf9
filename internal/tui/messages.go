package tui

import (
	"github.com/mmcdole/mediacovers/internal/domain"
	"github.com/mmcdole/mediacovers/internal/service"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// ListingLoadedMsg signals that a directory has been listed
type ListingLoadedMsg struct {
	Listing domain.Listing
	Focus   string // name to select after load, e.g. the folder we came from
}

// CoverEventMsg carries one cover state change from the service
type CoverEventMsg struct {
	Event service.CoverEvent
}

// TickMsg drives the spinner and the readiness poll
type TickMsg struct{}
