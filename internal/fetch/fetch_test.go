package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmcdole/mediacovers/internal/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, nil, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestFetch_ValidImage(t *testing.T) {
	body := pngBytes(t)
	var gotHeaders http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if r.URL.Path != "/music/cache/covers/song.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))

	if err := c.Fetch(context.Background(), "/music/cache/covers/song.jpg"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := gotHeaders.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := gotHeaders.Get("Priority"); got != lowPriority {
		t.Fatalf("Priority = %q", got)
	}
	if got := gotHeaders.Get("User-Agent"); got != userAgent {
		t.Fatalf("User-Agent = %q", got)
	}
}

func TestFetch_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	err := c.Fetch(context.Background(), "/missing.jpg")
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("Fetch() error = %v, want ErrFetchFailed", err)
	}
}

func TestFetch_OKButNotAnImage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not here</html>"))
	}))

	err := c.Fetch(context.Background(), "/x.jpg")
	if !errors.Is(err, domain.ErrDecodeFailed) {
		t.Fatalf("Fetch() error = %v, want ErrDecodeFailed", err)
	}
}

func TestFetch_TruncatedImage(t *testing.T) {
	body := pngBytes(t)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body[:len(body)-12])
	}))

	err := c.Fetch(context.Background(), "/x.png")
	if !errors.Is(err, domain.ErrDecodeFailed) {
		t.Fatalf("Fetch() error = %v, want ErrDecodeFailed", err)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, maxCoverBytes+1))
	}))

	err := c.Fetch(context.Background(), "/huge.jpg")
	if !errors.Is(err, domain.ErrFetchFailed) || errors.Is(err, domain.ErrDecodeFailed) {
		t.Fatalf("Fetch() error = %v, want ErrFetchFailed only", err)
	}
}

func TestFetch_BasicAuth(t *testing.T) {
	body := pngBytes(t)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(body)
	}), WithBasicAuth("alice", "secret"))

	if err := c.Fetch(context.Background(), "/a.png"); err != nil {
		t.Fatalf("Fetch with credentials: %v", err)
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Fetch(ctx, "/a.png"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("Fetch() error = %v, want ErrFetchFailed", err)
	}
}

func TestExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		switch r.URL.Path {
		case "/ok.jpg":
			w.WriteHeader(http.StatusOK)
		case "/nohead.jpg":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	cases := map[string]bool{
		"/ok.jpg":     true,
		"/nohead.jpg": true,
		"/gone.jpg":   false,
	}
	for path, want := range cases {
		got, err := c.Exists(context.Background(), path)
		if err != nil {
			t.Fatalf("Exists(%s): %v", path, err)
		}
		if got != want {
			t.Fatalf("Exists(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(pngBytes(t)); err != nil {
		t.Fatalf("Validate(png): %v", err)
	}
	for name, data := range map[string][]byte{
		"empty":       nil,
		"text":        []byte("hello"),
		"truncated":   pngBytes(t)[:8],
		"header only": pngBytes(t)[:33], // signature and IHDR, no pixel data
	} {
		if err := Validate(data); !errors.Is(err, domain.ErrDecodeFailed) {
			t.Fatalf("Validate(%s) = %v, want ErrDecodeFailed", name, err)
		}
	}
}

func TestResolve(t *testing.T) {
	c, err := NewClient("http://host:8080/", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.Resolve("/music/cache/covers/a%20b.jpg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "http://host:8080/music/cache/covers/a%20b.jpg"; got != want {
		t.Fatalf("Resolve() = %q, want %q", got, want)
	}
}
