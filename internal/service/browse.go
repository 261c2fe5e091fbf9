package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/mediacovers/internal/domain"
)

const listingTTL = 2 * time.Minute

// cachedListing stores a listing with the time it was fetched
type cachedListing struct {
	Listing   domain.Listing
	FetchedAt time.Time
}

// BrowseService handles directory navigation. Opening a directory discards
// the in-memory cover state of the previous one.
type BrowseService struct {
	repo   domain.ListingRepository
	covers *CoverService
	logger *slog.Logger
	now    func() time.Time

	cache   map[string]cachedListing
	cacheMu sync.RWMutex
}

// NewBrowseService creates a browse service. covers may be nil (listing only).
func NewBrowseService(repo domain.ListingRepository, covers *CoverService, logger *slog.Logger) *BrowseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowseService{
		repo:   repo,
		covers: covers,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cachedListing),
	}
}

// Open lists dir and makes it the current directory.
func (s *BrowseService) Open(ctx context.Context, dir string) (domain.Listing, error) {
	return s.open(ctx, dir, false)
}

// Reload lists dir again, bypassing the listing cache.
func (s *BrowseService) Reload(ctx context.Context, dir string) (domain.Listing, error) {
	return s.open(ctx, dir, true)
}

func (s *BrowseService) open(ctx context.Context, dir string, force bool) (domain.Listing, error) {
	listing, ok := s.cached(dir)
	if !ok || force {
		var err error
		listing, err = s.repo.List(ctx, dir)
		if err != nil {
			s.logger.Error("failed to list directory", "dir", dir, "error", err)
			return domain.Listing{}, err
		}
		s.store(dir, listing)
	} else {
		s.logger.Debug("listing cache hit", "dir", dir)
	}

	if s.covers != nil {
		s.covers.Navigate()
	}
	return listing, nil
}

func (s *BrowseService) cached(dir string) (domain.Listing, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	c, ok := s.cache[dir]
	if !ok || s.now().Sub(c.FetchedAt) > listingTTL {
		return domain.Listing{}, false
	}
	return c.Listing, true
}

func (s *BrowseService) store(dir string, listing domain.Listing) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[dir] = cachedListing{Listing: listing, FetchedAt: s.now()}
}
