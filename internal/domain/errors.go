package domain

import "errors"

// Sentinel errors for cover resolution. None of them escape to the host as
// hard failures; they are reported as the absence of a cover.
var (
	// ErrCandidateExhausted indicates every candidate URL for an entry has failed
	ErrCandidateExhausted = errors.New("no cover candidate left")

	// ErrFetchFailed indicates a network error or a non-2xx response
	ErrFetchFailed = errors.New("cover fetch failed")

	// ErrDecodeFailed indicates the transfer succeeded but the body is not an image
	ErrDecodeFailed = errors.New("cover is not a decodable image")

	// ErrStaleOutcome indicates a persisted cover URL no longer resolves
	ErrStaleOutcome = errors.New("stored cover outcome is stale")

	// ErrNotRelevant indicates the entry never carries a cover
	ErrNotRelevant = errors.New("entry has no cover candidates")

	// ErrListingUnavailable indicates the listing host could not be read
	ErrListingUnavailable = errors.New("listing host is unreachable")
)
