package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/mediacovers/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	// documentVersion is the only document layout this store reads
	documentVersion = 1

	// storageKey names the single durable record holding the whole document
	storageKey = "mediaCoverCache"

	// keepFraction of MaxEntries survives a capacity trim
	keepFraction = 0.8
)

var bucketCovers = []byte("covers")

// Options bound the store.
type Options struct {
	ExpiryDays int // 0 = never expire
	MaxEntries int // 0 = unbounded
}

// record is one entry of the serialized document
type record struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	EntryURI  string `json:"entryUri"`
	EntryName string `json:"entryName"`

	seq uint64 // insertion order within this process, breaks timestamp ties
}

// document is the versioned JSON layout persisted under storageKey.
// Entries are [key, record] pairs.
type document struct {
	Version   int               `json:"version"`
	Timestamp int64             `json:"timestamp"`
	Entries   []json.RawMessage `json:"entries"`
}

// OutcomeStore implements domain.OutcomeStore using BoltDB.
// The full document is rewritten on every mutation.
type OutcomeStore struct {
	db   *bolt.DB
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]record
	seq     uint64
}

// NewOutcomeStore opens (or creates) the store at path. An empty path keeps
// everything in memory.
func NewOutcomeStore(path string, opts Options) (*OutcomeStore, error) {
	s := &OutcomeStore{
		opts:    opts,
		now:     time.Now,
		entries: make(map[string]record),
	}
	if path == "" {
		// Memory-only mode (no persistence)
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCovers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.db = db

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the time source (tests).
func (s *OutcomeStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *OutcomeStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the stored URL for key. Expired records are dropped on the way.
func (s *OutcomeStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if s.expired(rec) {
		delete(s.entries, key)
		s.persist() // best effort; the record is gone from memory either way
		return "", false
	}
	return rec.URL, true
}

// Set records url for key and trims the store when it grows past capacity.
func (s *OutcomeStore) Set(key, url string, entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.entries[key] = record{
		URL:       url,
		Timestamp: s.now().UnixMilli(),
		EntryURI:  entry.URI,
		EntryName: entry.Name,
		seq:       s.seq,
	}
	s.trim()
	return s.persist()
}

func (s *OutcomeStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.persist()
}

// SweepExpired drops every expired record.
func (s *OutcomeStore) SweepExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.entries {
		if s.expired(rec) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

func (s *OutcomeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lookup returns the full record for key, ignoring expiry.
func (s *OutcomeStore) Lookup(key string) (domain.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[key]
	if !ok {
		return domain.Outcome{}, false
	}
	return domain.Outcome{
		URL:       rec.URL,
		Timestamp: time.UnixMilli(rec.Timestamp),
		EntryURI:  rec.EntryURI,
		EntryName: rec.EntryName,
	}, true
}

// === Internal helpers (callers hold mu) ===

func (s *OutcomeStore) expired(rec record) bool {
	if s.opts.ExpiryDays <= 0 {
		return false
	}
	maxAge := time.Duration(s.opts.ExpiryDays) * 24 * time.Hour
	return s.now().Sub(time.UnixMilli(rec.Timestamp)) > maxAge
}

// trim evicts the oldest records so that floor(0.8*MaxEntries) remain.
func (s *OutcomeStore) trim() {
	limit := s.opts.MaxEntries
	if limit <= 0 || len(s.entries) <= limit {
		return
	}

	keep := int(math.Floor(float64(limit) * keepFraction))
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := s.entries[keys[i]], s.entries[keys[j]]
		if ri.Timestamp != rj.Timestamp {
			return ri.Timestamp < rj.Timestamp
		}
		if ri.seq != rj.seq {
			return ri.seq < rj.seq
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys[:len(keys)-keep] {
		delete(s.entries, k)
	}
}

func (s *OutcomeStore) persist() error {
	if s.db == nil {
		return nil // Memory-only mode
	}

	data, err := s.encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCovers)
		return b.Put([]byte(storageKey), data)
	})
}

func (s *OutcomeStore) encode() ([]byte, error) {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := document{
		Version:   documentVersion,
		Timestamp: s.now().UnixMilli(),
		Entries:   make([]json.RawMessage, 0, len(keys)),
	}
	for _, k := range keys {
		pair, err := json.Marshal([]interface{}{k, s.entries[k]})
		if err != nil {
			return nil, err
		}
		doc.Entries = append(doc.Entries, pair)
	}
	return json.Marshal(doc)
}

// load reads the document into memory. Unknown versions and corrupt documents
// are discarded rather than failing startup.
func (s *OutcomeStore) load() error {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCovers)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(storageKey)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return err
	}

	entries, ok := decode(data)
	if !ok {
		return s.persist()
	}
	s.entries = entries
	return nil
}

func decode(data []byte) (map[string]record, bool) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc.Version != documentVersion {
		return nil, false
	}
	entries := make(map[string]record, len(doc.Entries))
	for _, raw := range doc.Entries {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			continue
		}
		var key string
		var rec record
		if json.Unmarshal(pair[0], &key) != nil || json.Unmarshal(pair[1], &rec) != nil {
			continue
		}
		if key != "" && rec.URL != "" {
			entries[key] = rec
		}
	}
	return entries, true
}
