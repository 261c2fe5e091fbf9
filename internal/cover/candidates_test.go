package cover

import (
	"reflect"
	"testing"

	"github.com/mmcdole/mediacovers/internal/domain"
)

var (
	song  = domain.Entry{URI: "/music/song.mp3", Name: "song.mp3"}
	movie = domain.Entry{URI: "/v/movie.mkv", Name: "movie.mkv"}
)

func TestCandidates_Audio(t *testing.T) {
	cfg := DefaultPathConfig()

	got := Candidates(song, cfg)
	want := []string{"/music/cache/covers/song.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("single-root audio = %v, want %v", got, want)
	}

	// Dual-path only affects video thumbnails.
	cfg.Mode = ModeDualPath
	if got := Candidates(song, cfg); !reflect.DeepEqual(got, want) {
		t.Fatalf("dual-path audio = %v, want %v", got, want)
	}
}

func TestCandidates_AudioGraft(t *testing.T) {
	cfg := DefaultPathConfig()
	cfg.Mode = ModeGraft
	cfg.GraftPath = "/alt/"

	got := Candidates(song, cfg)
	want := []string{"/alt/music/cache/covers/song.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("graft audio = %v, want %v", got, want)
	}

	cfg.GraftMusicCovers = false
	if got := Candidates(song, cfg); len(got) != 0 {
		t.Fatalf("graft with music covers off = %v, want none", got)
	}
}

func TestCandidates_Video(t *testing.T) {
	cases := []struct {
		name  string
		entry domain.Entry
		cfg   func(*PathConfig)
		want  []string
	}{
		{
			name:  "single root jpg first",
			entry: movie,
			want: []string{
				"/v/cache/videothumbnail/movie.jpg",
				"/v/cache/videothumbnail/movie.gif",
			},
		},
		{
			name:  "gif preferred",
			entry: movie,
			cfg:   func(c *PathConfig) { c.PreferredFormat = "gif" },
			want: []string{
				"/v/cache/videothumbnail/movie.gif",
				"/v/cache/videothumbnail/movie.jpg",
			},
		},
		{
			name:  "entry cover format overrides preference",
			entry: domain.Entry{URI: "/v/movie.mkv", Name: "movie.mkv", CoverExt: "GIF"},
			want: []string{
				"/v/cache/videothumbnail/movie.gif",
				"/v/cache/videothumbnail/movie.jpg",
			},
		},
		{
			name:  "dual path interleaves images root and direct path",
			entry: movie,
			cfg:   func(c *PathConfig) { c.Mode = ModeDualPath },
			want: []string{
				"/images/cache/v/cache/videothumbnail/movie.jpg",
				"/v/cache/videothumbnail/movie.jpg",
				"/images/cache/v/cache/videothumbnail/movie.gif",
				"/v/cache/videothumbnail/movie.gif",
			},
		},
		{
			name:  "dual path outside allowed folders",
			entry: movie,
			cfg: func(c *PathConfig) {
				c.Mode = ModeDualPath
				c.ImagesPathFolders = []string{"/films/"}
			},
			want: []string{
				"/v/cache/videothumbnail/movie.jpg",
				"/v/cache/videothumbnail/movie.gif",
			},
		},
		{
			name:  "dual path inside allowed folders",
			entry: movie,
			cfg: func(c *PathConfig) {
				c.Mode = ModeDualPath
				c.ImagesPathFolders = []string{"/films/", "/v/"}
			},
			want: []string{
				"/images/cache/v/cache/videothumbnail/movie.jpg",
				"/v/cache/videothumbnail/movie.jpg",
				"/images/cache/v/cache/videothumbnail/movie.gif",
				"/v/cache/videothumbnail/movie.gif",
			},
		},
		{
			name:  "graft has no direct fallback",
			entry: movie,
			cfg: func(c *PathConfig) {
				c.Mode = ModeGraft
				c.GraftPath = "/alt"
			},
			want: []string{
				"/alt/v/cache/videothumbnail/movie.jpg",
				"/alt/v/cache/videothumbnail/movie.gif",
			},
		},
		{
			name:  "graft with video covers off",
			entry: movie,
			cfg: func(c *PathConfig) {
				c.Mode = ModeGraft
				c.GraftVideoCovers = false
			},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPathConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			got := Candidates(tc.entry, cfg)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Candidates() =\n%v\nwant\n%v", got, tc.want)
			}
		})
	}
}

func TestCandidates_Deterministic(t *testing.T) {
	cfg := DefaultPathConfig()
	cfg.Mode = ModeDualPath
	a := Candidates(movie, cfg)
	b := Candidates(movie, cfg)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("candidates differ between calls: %v vs %v", a, b)
	}
}

func TestCandidates_NoneForIrrelevant(t *testing.T) {
	cfg := DefaultPathConfig()
	for _, e := range []domain.Entry{
		{URI: "/p/pic.gif", Name: "pic.gif"},
		{URI: "/p/notes.txt", Name: "notes.txt"},
		{URI: "/p/sub/", Name: "sub", IsDir: true},
	} {
		if got := Candidates(e, cfg); len(got) != 0 {
			t.Fatalf("Candidates(%q) = %v, want none", e.Name, got)
		}
	}
}

func TestCandidates_EncodesBasename(t *testing.T) {
	e := domain.Entry{URI: "/music/my%20song%20%231.mp3", Name: "my song #1.mp3"}
	got := Candidates(e, DefaultPathConfig())
	want := []string{"/music/cache/covers/my%20song%20%231.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Candidates() = %v, want %v", got, want)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"/A/B.JPG":         "/a/b.jpg",
		"/a/b.jpg?v=2":     "/a/b.jpg",
		"/a/b.jpg#frag":    "/a/b.jpg",
		"/Cache/x.gif?a#b": "/cache/x.gif",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsVideoThumbURL(t *testing.T) {
	if !IsVideoThumbURL("/v/Cache/VideoThumbnail/clip.gif") {
		t.Fatalf("expected video thumbnail url")
	}
	if IsVideoThumbURL("/music/cache/covers/song.jpg") {
		t.Fatalf("audio cover is not a video thumbnail")
	}
}
