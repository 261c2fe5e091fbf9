package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/mediacovers/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "mediacovers/1.0"
	fileListPath   = "/~/api/get_file_list"
)

// Client implements domain.ListingRepository for HFS-style file servers.
// It uses the JSON file list API and falls back to scraping the HTML
// directory index when the API is not available.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a listing client for the server at baseURL.
func NewClient(baseURL, username, password string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// fileListResponse is the subset of the HFS file list we use
type fileListResponse struct {
	List []fileListItem `json:"list"`
}

type fileListItem struct {
	Name     string `json:"n"`
	Size     int64  `json:"s"`
	Modified string `json:"m"`
	Created  string `json:"c"`
}

// List returns the entries of dir, folders first, then files by name.
func (c *Client) List(ctx context.Context, dir string) (domain.Listing, error) {
	dir = CleanDir(dir)

	entries, err := c.listAPI(ctx, dir)
	if err != nil {
		c.logger.Debug("file list api unavailable, trying html index", "dir", dir, "error", err)
		entries, err = c.listHTML(ctx, dir)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("%w: %v", domain.ErrListingUnavailable, err)
		}
	}

	SortEntries(entries)
	c.logger.Debug("listed directory", "dir", dir, "count", len(entries))
	return domain.Listing{Dir: dir, Entries: entries}, nil
}

func (c *Client) listAPI(ctx context.Context, dir string) ([]domain.Entry, error) {
	query := url.Values{}
	query.Set("uri", dir)

	body, err := c.get(ctx, fileListPath+"?"+query.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp fileListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse file list: %w", err)
	}
	return parseFileList(dir, resp.List), nil
}

func (c *Client) listHTML(ctx context.Context, dir string) ([]domain.Entry, error) {
	body, err := c.get(ctx, escapePath(dir), "text/html")
	if err != nil {
		return nil, err
	}
	return ParseIndex(dir, strings.NewReader(string(body)))
}

func (c *Client) get(ctx context.Context, pathAndQuery, accept string) ([]byte, error) {
	reqURL := c.baseURL + pathAndQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.logger.Debug("listing request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func parseFileList(dir string, items []fileListItem) []domain.Entry {
	entries := make([]domain.Entry, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		entries = append(entries, newEntry(dir, it.Name, it.Size, parseTime(it.Modified, it.Created)))
	}
	return entries
}

// ParseIndex extracts entries from an HTML directory index (HFS classic,
// Apache and nginx autoindex all render plain relative links).
func ParseIndex(dir string, r io.Reader) ([]domain.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}

	seen := make(map[string]bool)
	var entries []domain.Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		name, ok := indexLinkName(dir, href)
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		entries = append(entries, newEntry(dir, name, 0, time.Time{}))
	})
	return entries, nil
}

// indexLinkName turns an index link into an entry name relative to dir.
// Parent links, sort links, absolute URLs and nested paths are skipped.
func indexLinkName(dir, href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" || u.RawQuery != "" && u.Path == "" {
		return "", false
	}
	p := u.Path
	if strings.HasPrefix(p, "/") {
		if !strings.HasPrefix(p, dir) {
			return "", false
		}
		p = strings.TrimPrefix(p, dir)
	}
	if p == "" || p == "./" || strings.HasPrefix(p, "..") {
		return "", false
	}
	trimmed := strings.TrimSuffix(p, "/")
	if strings.Contains(trimmed, "/") {
		return "", false
	}
	return p, true
}

func newEntry(dir, name string, size int64, modified time.Time) domain.Entry {
	isDir := strings.HasSuffix(name, "/")
	display := strings.TrimSuffix(name, "/")
	e := domain.Entry{
		URI:      dir + escapePath(name),
		Name:     display,
		IsDir:    isDir,
		Size:     size,
		Modified: modified,
	}
	if !isDir {
		e.Ext = strings.TrimPrefix(strings.ToLower(path.Ext(display)), ".")
	}
	return e
}

func parseTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// escapePath percent-encodes every segment of p, keeping the slashes.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// CleanDir normalizes a directory path to "/a/b/" form.
func CleanDir(dir string) string {
	dir = path.Clean("/" + strings.TrimSpace(dir))
	if dir == "/" {
		return dir
	}
	return dir + "/"
}

// ParentDir returns the parent of a cleaned directory ("/" stays "/").
func ParentDir(dir string) string {
	dir = CleanDir(dir)
	if dir == "/" {
		return dir
	}
	return CleanDir(path.Dir(strings.TrimSuffix(dir, "/")))
}

// SortEntries orders folders first, then case-insensitively by name.
func SortEntries(entries []domain.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
