package domain

import "time"

// OutcomeStore is the durable memory of previously verified cover URLs.
// Keys are Entry.Key values. Presence of a record does not make it
// authoritative: callers revalidate before trusting it.
type OutcomeStore interface {
	Get(key string) (string, bool)
	Set(key, url string, entry Entry) error
	Remove(key string) error

	// SweepExpired drops records older than the configured age and
	// returns how many were removed.
	SweepExpired() (int, error)
	Len() int

	// === Lifecycle ===
	Close() error
}

// Outcome is one persisted cover record.
type Outcome struct {
	URL       string
	Timestamp time.Time
	EntryURI  string
	EntryName string
}

// NoOpStore keeps nothing (for testing/batch operations).
type NoOpStore struct{}

func (NoOpStore) Get(string) (string, bool)       { return "", false }
func (NoOpStore) Set(string, string, Entry) error { return nil }
func (NoOpStore) Remove(string) error             { return nil }
func (NoOpStore) SweepExpired() (int, error)      { return 0, nil }
func (NoOpStore) Len() int                        { return 0 }
func (NoOpStore) Close() error                    { return nil }
