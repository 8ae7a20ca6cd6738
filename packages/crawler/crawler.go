package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"trinayana/packages/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxBodyBytes = 5 << 20
)

type Crawler struct {
	client *http.Client
}

// New returns a crawler whose requests time out after timeout. Unless
// allowPrivate is set, it refuses to connect to loopback, private and
// link-local addresses.
func New(timeout time.Duration, allowPrivate bool) *Crawler {
	return &Crawler{
		client: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(allowPrivate),
		},
	}
}

func (c *Crawler) FetchPage(ctx context.Context, rawURL string) (*domain.FetchedPage, error) {
	slog.Debug("Starting page fetch", "url", rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("Fetch returned bad status code", "url", rawURL, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	finalURL := resp.Request.URL.String()
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "html") {
		slog.Debug("Content-Type is not HTML", "url", rawURL, "content_type", contentType)
		return &domain.FetchedPage{IsNonHTML: true, FinalURL: finalURL}, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	page := &domain.FetchedPage{FinalURL: finalURL, GoqueryDoc: doc}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Language = detectLanguage(doc, page.Title)
	return page, nil
}

func detectLanguage(doc *goquery.Document, title string) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	words := strings.Fields(body.Text())
	if len(words) > 100 {
		words = words[:100]
	}

	text := strings.TrimSpace(title + " " + strings.Join(words, " "))
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6393()
}

// ExtractLinks returns the distinct http(s) links of doc resolved against
// baseURL, sorted, with fragments removed.
func (c *Crawler) ExtractLinks(doc *goquery.Document, baseURL string, ignoreExtensions []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	linkSet := make(map[string]struct{})
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}

		lowerHref := strings.ToLower(href)
		for _, ext := range ignoreExtensions {
			if ext != "" && strings.HasSuffix(lowerHref, ext) {
				return
			}
		}

		resolvedURL, err := base.Parse(href)
		if err == nil && (resolvedURL.Scheme == "http" || resolvedURL.Scheme == "https") {
			resolvedURL.Fragment = ""
			resolvedURL.RawFragment = ""
			linkSet[resolvedURL.String()] = struct{}{}
		}
	})

	links := make([]string, 0, len(linkSet))
	for link := range linkSet {
		links = append(links, link)
	}
	sort.Strings(links)
	slog.Debug("Link extraction found links", "base_url", baseURL, "count", len(links))
	return links
}
