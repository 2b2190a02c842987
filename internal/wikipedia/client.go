// Package wikipedia looks up celebrity thumbnails and lead images.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/logger"
)

const (
	defaultAPIURL    = "https://en.wikipedia.org/w/api.php"
	defaultRestURL   = "https://en.wikipedia.org/api/rest_v1"
	defaultUserAgent = "StarlinksBot/1.0 (https://github.com/starlinks)"
	defaultTimeout   = 5 * time.Second
	defaultCacheSize = 512

	// MinImageBytes is the smallest body accepted as an image.
	MinImageBytes = 100

	maxImageBytes = 20 << 20
)

// Client talks to the MediaWiki action API and the REST summary endpoint.
type Client struct {
	client    *http.Client
	apiURL    string
	restURL   string
	pageURL   string
	userAgent string
	timeout   time.Duration
	cache     *lru.Cache[string, string]
}

// NewClient creates a client from configuration. Empty fields use defaults.
func NewClient(cfg config.Wikipedia) *Client {
	timeout := config.Duration(cfg.Timeout, defaultTimeout)
	c := &Client{
		client:    &http.Client{Timeout: timeout},
		apiURL:    orDefault(cfg.APIURL, defaultAPIURL),
		restURL:   strings.TrimRight(orDefault(cfg.RestURL, defaultRestURL), "/"),
		userAgent: orDefault(cfg.UserAgent, defaultUserAgent),
		timeout:   timeout,
	}
	c.pageURL = articleBase(c.apiURL)

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err == nil {
		c.cache = cache
	}
	return c
}

// Thumbnail returns the summary thumbnail URL for name, or "" when there is
// none or the lookup fails. It never returns an error.
func (c *Client) Thumbnail(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	key := core.NormalizeName(name)
	if c.cache != nil {
		if src, ok := c.cache.Get(key); ok {
			return src
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var summary struct {
		Thumbnail struct {
			Source string `json:"source"`
		} `json:"thumbnail"`
	}
	endpoint := c.restURL + "/page/summary/" + url.PathEscape(titleFromName(name))
	if err := c.getJSON(ctx, endpoint, &summary); err != nil {
		logger.Debug("Thumbnail lookup failed", "name", name, "error", err)
		return ""
	}

	src := summary.Thumbnail.Source
	if src != "" && c.cache != nil {
		c.cache.Add(key, src)
	}
	return src
}

// Search returns the title of the best matching article.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", "1")
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var resp struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, c.apiURL+"?"+params.Encode(), &resp); err != nil {
		return "", fmt.Errorf("wikipedia search failed: %w", err)
	}
	if len(resp.Query.Search) == 0 || resp.Query.Search[0].Title == "" {
		return "", fmt.Errorf("%w: %s", ErrNoResult, query)
	}
	return resp.Query.Search[0].Title, nil
}

// PageImage returns the lead image URL of an article, preferring the
// original over the thumbnail. Articles without page images fall back to the
// og:image meta tag of the rendered page.
func (c *Client) PageImage(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", title)
	params.Set("prop", "pageimages")
	params.Set("piprop", "thumbnail|original")
	params.Set("pithumbsize", "800")
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var resp struct {
		Query struct {
			Pages []struct {
				Original struct {
					Source string `json:"source"`
				} `json:"original"`
				Thumbnail struct {
					Source string `json:"source"`
				} `json:"thumbnail"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, c.apiURL+"?"+params.Encode(), &resp); err != nil {
		return "", fmt.Errorf("wikipedia page image query failed: %w", err)
	}
	for _, page := range resp.Query.Pages {
		if page.Original.Source != "" {
			return page.Original.Source, nil
		}
		if page.Thumbnail.Source != "" {
			return page.Thumbnail.Source, nil
		}
	}

	return c.openGraphImage(ctx, title)
}

func (c *Client) openGraphImage(ctx context.Context, title string) (string, error) {
	resp, err := c.get(ctx, c.pageURL+url.PathEscape(titleFromName(title)))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse article html: %w", err)
	}
	src, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	if !ok || strings.TrimSpace(src) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoImage, title)
	}
	return strings.TrimSpace(src), nil
}

// Download fetches imageURL into dir as stem plus an extension guessed from
// the response and returns the written path.
func (c *Client) Download(ctx context.Context, imageURL, dir, stem string) (string, error) {
	resp, err := c.get(ctx, imageURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(body) < MinImageBytes {
		return "", fmt.Errorf("%w: %d bytes from %s", ErrImageTooSmall, len(body), imageURL)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	dest := filepath.Join(dir, stem+"."+imageExtension(resp.Header.Get("Content-Type"), imageURL))
	if err := os.WriteFile(dest, body, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return dest, nil
}

// FetchPortrait searches for name, resolves its lead image and downloads it
// into dir under the portrait stem of name and birthYear.
func (c *Client) FetchPortrait(ctx context.Context, name string, birthYear int, dir string) (string, error) {
	title, err := c.Search(ctx, name)
	if err != nil {
		return "", err
	}
	src, err := c.PageImage(ctx, title)
	if err != nil {
		return "", err
	}
	dest, err := c.Download(ctx, src, dir, core.PortraitStem(name, birthYear))
	if err != nil {
		return "", err
	}
	logger.Info("Downloaded wikipedia portrait", "name", name, "title", title, "path", dest)
	return dest, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// get performs a GET and returns the response only for 2xx statuses.
func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	return resp, nil
}

func imageExtension(contentType, imageURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg", "image/jpg":
			return "jpg"
		case "image/png":
			return "png"
		case "image/webp":
			return "webp"
		case "image/gif":
			return "gif"
		}
	}
	if u, err := url.Parse(imageURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		for _, known := range core.ImageExtensions {
			if ext == known {
				return ext
			}
		}
	}
	return "jpg"
}

func titleFromName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// articleBase maps https://host/w/api.php to https://host/wiki/.
func articleBase(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "https://en.wikipedia.org/wiki/"
	}
	return u.Scheme + "://" + u.Host + "/wiki/"
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
