package service

import (
	"errors"
	"log/slog"

	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/domain"
)

// ErrCoverNotResolved is returned when a cover is opened before it loaded.
var ErrCoverNotResolved = errors.New("cover is not resolved")

// launcher abstracts external program launching (consumer-defined interface)
type launcher interface {
	Launch(url string) error
}

// PlaybackService hands entries and their covers to external programs
type PlaybackService struct {
	player launcher
	viewer launcher
	covers *CoverService
	absURL func(path string) (string, error)
	logger *slog.Logger
}

// NewPlaybackService creates a new playback service. absURL turns a server
// path into an absolute URL.
func NewPlaybackService(
	player, viewer launcher,
	covers *CoverService,
	absURL func(path string) (string, error),
	logger *slog.Logger,
) *PlaybackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackService{
		player: player,
		viewer: viewer,
		covers: covers,
		absURL: absURL,
		logger: logger,
	}
}

// Play opens a media entry in the player
func (s *PlaybackService) Play(e domain.Entry) error {
	if e.IsDir {
		return domain.ErrNotRelevant
	}
	url, err := s.absURL(e.URI)
	if err != nil {
		return err
	}
	s.logger.Info("launching playback", "entry", e.Name)
	return s.player.Launch(url)
}

// ViewCover opens the resolved cover of an entry in the image viewer
func (s *PlaybackService) ViewCover(e domain.Entry) error {
	state, coverURL := s.covers.Status(e)
	if state != cover.StateResolved {
		return ErrCoverNotResolved
	}
	url, err := s.absURL(coverURL)
	if err != nil {
		return err
	}
	s.logger.Info("opening cover", "entry", e.Name, "url", coverURL)
	return s.viewer.Launch(url)
}
