package domain

import (
	"path"
	"strings"
	"time"
)

// Entry is a single item of a directory listing as reported by the listing host.
// The core never mutates it.
type Entry struct {
	URI      string    // Server path, e.g. "/music/song.mp3"
	Name     string    // Display name, e.g. "song.mp3"
	Ext      string    // Extension without dot; derived from Name when empty
	CoverExt string    // Optional cover format override ("jpg" or "gif")
	IsDir    bool      // Folder entries are navigable, never classified
	Size     int64     // Bytes, 0 when unknown
	Modified time.Time // Zero when unknown
}

// Key returns the normalized identity used by every cache in the core.
func (e Entry) Key() string {
	return strings.ToLower(e.URI) + "|" + strings.ToLower(e.Name)
}

// Extension returns the lowercase extension, falling back to the name.
func (e Entry) Extension() string {
	ext := e.Ext
	if ext == "" {
		ext = path.Ext(e.Name)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Dir returns the URI up to and including the last slash.
func (e Entry) Dir() string {
	i := strings.LastIndex(e.URI, "/")
	if i < 0 {
		return ""
	}
	return e.URI[:i+1]
}

// Basename returns the display name with its extension stripped.
func (e Entry) Basename() string {
	name := e.Name
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// Listing is one rendered directory of the host.
type Listing struct {
	Dir     string
	Entries []Entry
}

// MediaEntries returns the entries that can carry a cover.
func (l Listing) MediaEntries() []Entry {
	out := make([]Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		if c := Classify(e); c == ClassAudio || c == ClassVideo {
			out = append(out, e)
		}
	}
	return out
}
