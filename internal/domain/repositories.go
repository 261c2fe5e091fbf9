package domain

import (
	"context"
)

// ListingRepository provides access to the host's directory listings
type ListingRepository interface {
	// List returns the entries of a directory, folders included
	List(ctx context.Context, dir string) (Listing, error)
}

// CoverFetcher performs the network side of cover resolution
type CoverFetcher interface {
	// Fetch downloads url and verifies it decodes as an image.
	// Returns ErrFetchFailed or ErrDecodeFailed (wrapped) on failure.
	Fetch(ctx context.Context, url string) error

	// Exists performs a cheap revalidation (HEAD) of a previously verified URL
	Exists(ctx context.Context, url string) (bool, error)
}
