package cover

import (
	"net/url"
	"strings"

	"github.com/mmcdole/mediacovers/internal/domain"
)

// Cache path segments shared with the thumbnail-producing side.
const (
	AudioCoverSegment = "cache/covers/"
	VideoThumbSegment = "cache/videothumbnail/"

	// videoThumbMarker identifies a video thumbnail URL anywhere in a path
	videoThumbMarker = "/" + VideoThumbSegment
)

// PathMode selects one of the mutually exclusive URL layouts.
type PathMode int

const (
	ModeSingleRoot PathMode = iota // direct path only
	ModeDualPath                   // images root first, then direct path
	ModeGraft                      // single alternate root, no fallback
)

func (m PathMode) String() string {
	switch m {
	case ModeDualPath:
		return "dual-path"
	case ModeGraft:
		return "graft"
	default:
		return "single-root"
	}
}

// PathConfig is the snapshot of path-related options candidates are built from.
type PathConfig struct {
	Mode PathMode

	// PreferredFormat is "jpg" or "gif"; the other one is tried second.
	PreferredFormat string

	// Dual-path mode
	ImagesCachePath   string
	ImagesPathFolders []string // empty matches every folder

	// Graft mode
	GraftPath        string
	GraftVideoCovers bool
	GraftMusicCovers bool
}

// DefaultPathConfig returns single-root mode with jpg preferred.
func DefaultPathConfig() PathConfig {
	return PathConfig{
		Mode:             ModeSingleRoot,
		PreferredFormat:  "jpg",
		ImagesCachePath:  "/images/cache",
		GraftVideoCovers: true,
		GraftMusicCovers: true,
	}
}

// Candidates returns the ordered cover URLs worth trying for an entry.
// It performs no I/O. Irrelevant and native image entries get none.
func Candidates(e domain.Entry, cfg PathConfig) []string {
	switch domain.Classify(e) {
	case domain.ClassAudio:
		return audioCandidates(e, cfg)
	case domain.ClassVideo:
		return videoCandidates(e, cfg)
	default:
		return nil
	}
}

func audioCandidates(e domain.Entry, cfg PathConfig) []string {
	suffix := e.Dir() + AudioCoverSegment + encodeBase(e) + ".jpg"
	if cfg.Mode == ModeGraft {
		if !cfg.GraftMusicCovers {
			return nil
		}
		return []string{joinRoot(cfg.GraftPath, suffix)}
	}
	return []string{suffix}
}

func videoCandidates(e domain.Entry, cfg PathConfig) []string {
	if cfg.Mode == ModeGraft && !cfg.GraftVideoCovers {
		return nil
	}

	base := encodeBase(e)
	dir := e.Dir()
	useImages := cfg.Mode == ModeDualPath && folderAllowed(dir, cfg.ImagesPathFolders)

	var urls []string
	for _, format := range formatOrder(e, cfg) {
		suffix := dir + VideoThumbSegment + base + "." + format
		switch {
		case cfg.Mode == ModeGraft:
			urls = append(urls, joinRoot(cfg.GraftPath, suffix))
		case useImages:
			urls = append(urls, joinRoot(cfg.ImagesCachePath, suffix), suffix)
		default:
			urls = append(urls, suffix)
		}
	}
	return urls
}

// formatOrder yields the preferred format first. An explicit per-entry cover
// format overrides the configured preference.
func formatOrder(e domain.Entry, cfg PathConfig) []string {
	preferred := strings.ToLower(e.CoverExt)
	if preferred != "jpg" && preferred != "gif" {
		preferred = strings.ToLower(cfg.PreferredFormat)
	}
	if preferred == "gif" {
		return []string{"gif", "jpg"}
	}
	return []string{"jpg", "gif"}
}

func folderAllowed(dir string, folders []string) bool {
	if len(folders) == 0 {
		return true
	}
	for _, f := range folders {
		if f = strings.TrimSpace(f); f != "" && strings.HasPrefix(dir, f) {
			return true
		}
	}
	return false
}

// joinRoot prefixes suffix (which starts with "/") with root without doubling slashes.
func joinRoot(root, suffix string) string {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return root + suffix
}

// encodeBase percent-encodes the basename as a single path component.
func encodeBase(e domain.Entry) string {
	return strings.ReplaceAll(url.QueryEscape(e.Basename()), "+", "%20")
}

// IsVideoThumbURL reports whether u points into a video thumbnail cache.
func IsVideoThumbURL(u string) bool {
	return strings.Contains(strings.ToLower(u), videoThumbMarker)
}

// NormalizeURL is the key used for in-flight de-duplication and the negative cache.
func NormalizeURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}
