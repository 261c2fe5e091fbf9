package domain

import "strings"

// Classification tags a listing entry for cover discovery.
type Classification int

const (
	ClassIrrelevant Classification = iota
	ClassAudio
	ClassVideo
	ClassNativeImage
)

func (c Classification) String() string {
	switch c {
	case ClassAudio:
		return "audio"
	case ClassVideo:
		return "video"
	case ClassNativeImage:
		return "image"
	default:
		return "irrelevant"
	}
}

// HasCover reports whether entries of this class get cover candidates.
func (c Classification) HasCover() bool {
	return c == ClassAudio || c == ClassVideo
}

var audioExts = map[string]bool{
	"mp3": true, "flac": true, "wav": true, "ape": true, "aac": true, "ogg": true,
	"m4a": true, "alac": true, "dsf": true, "dsd": true, "aif": true, "aiff": true,
}

var videoExts = map[string]bool{
	"mp4": true, "webm": true, "mkv": true, "avi": true, "mov": true, "mpeg": true,
	"mpg": true, "wmv": true, "rmvb": true, "rm": true, "dat": true, "ts": true,
	"vob": true, "flv": true,
}

// Classify tags an entry from its extension alone.
//
// A ".gif" is speculatively NativeImage here. Callers holding resolution state
// must re-derive it (see cover.Resolver.Classify), since a gif listed next to a
// video thumbnail cache path is really a video cover.
func Classify(e Entry) Classification {
	if e.IsDir {
		return ClassIrrelevant
	}
	ext := e.Extension()
	switch {
	case audioExts[ext]:
		return ClassAudio
	case videoExts[ext]:
		return ClassVideo
	case ext == "gif":
		return ClassNativeImage
	default:
		return ClassIrrelevant
	}
}

// IsAudioExt reports whether ext (without dot, any case) is a recognized audio extension.
func IsAudioExt(ext string) bool { return audioExts[lower(ext)] }

// IsVideoExt reports whether ext (without dot, any case) is a recognized video extension.
func IsVideoExt(ext string) bool { return videoExts[lower(ext)] }

func lower(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
