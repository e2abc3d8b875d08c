// Package page loads host documents from the web or disk and renders them
// back out after substitution.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/japaniel/vocabify/pkg/reading"
)

// MaxBodySize caps how much of a remote page is read.
const MaxBodySize = 10 * 1024 * 1024

// ErrTooLarge is returned when a page exceeds the size limit.
var ErrTooLarge = errors.New("page: body exceeds size limit")

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page: %s returned status %d", e.URL, e.Code)
}

var (
	titleSelector = cascadia.MustCompile("title")
	bodySelector  = cascadia.MustCompile("body")
)

// Fetcher downloads pages with browser-like headers.
type Fetcher struct {
	Client      *http.Client
	MaxBodySize int64
}

// NewFetcher returns a fetcher with the given request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client:      &http.Client{Timeout: timeout},
		MaxBodySize: MaxBodySize,
	}
}

// Fetch returns the raw body of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("page: build request: %w", err)
	}
	// Some sites refuse obvious bots (403 or a Cloudflare challenge).
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := f.MaxBodySize
	if limit <= 0 {
		limit = MaxBodySize
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	if resp.ContentLength > limit {
		return nil, ErrTooLarge
	}

	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("page: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}

// Page is a parsed host document.
type Page struct {
	URL   *url.URL
	Title string
	Doc   *html.Node
}

// Domain returns the host name the page was loaded from, "" for local files.
func (p *Page) Domain() string {
	if p.URL == nil {
		return ""
	}
	return strings.ToLower(p.URL.Hostname())
}

// Body returns the body element, or the document when there is none.
func (p *Page) Body() *html.Node {
	if b := cascadia.Query(p.Doc, bodySelector); b != nil {
		return b
	}
	return p.Doc
}

// Parse builds a page from raw HTML. Ruby annotations are stripped first.
func Parse(raw []byte, u *url.URL) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(reading.SanitizeRuby(raw)))
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	p := &Page{URL: u, Doc: doc}
	if t := cascadia.Query(doc, titleSelector); t != nil {
		p.Title = strings.TrimSpace(dom.TextContent(t))
	}
	return p, nil
}

// Readable extracts the main article from raw HTML and returns it as a
// minimal document of paragraphs.
func Readable(raw []byte, u *url.URL) (*Page, error) {
	article, err := readability.FromReader(bytes.NewReader(reading.SanitizeRuby(raw)), u)
	if err != nil {
		return nil, fmt.Errorf("page: extract article: %w", err)
	}

	doc, err := html.Parse(strings.NewReader("<!DOCTYPE html><html><head></head><body></body></html>"))
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	head := cascadia.Query(doc, cascadia.MustCompile("head"))
	body := cascadia.Query(doc, bodySelector)

	title := dom.CreateElement("title")
	title.AppendChild(dom.CreateTextNode(article.Title))
	head.AppendChild(title)

	art := dom.CreateElement("article")
	h1 := dom.CreateElement("h1")
	h1.AppendChild(dom.CreateTextNode(article.Title))
	art.AppendChild(h1)
	if article.Byline != "" {
		by := dom.CreateElement("p")
		dom.SetAttribute(by, "class", "byline")
		by.AppendChild(dom.CreateTextNode(article.Byline))
		art.AppendChild(by)
	}
	for _, para := range paragraphs(article.TextContent) {
		p := dom.CreateElement("p")
		p.AppendChild(dom.CreateTextNode(para))
		art.AppendChild(p)
	}
	body.AppendChild(art)

	return &Page{URL: u, Title: article.Title, Doc: doc}, nil
}

func paragraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// IsRemote reports whether src names an http(s) URL rather than a file.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Load reads src from the network or disk and parses it. With readable set
// only the extracted article is kept.
func Load(ctx context.Context, f *Fetcher, src string, readable bool) (*Page, error) {
	var (
		raw []byte
		u   *url.URL
		err error
	)
	if IsRemote(src) {
		if u, err = url.Parse(src); err != nil {
			return nil, fmt.Errorf("page: bad url %q: %w", src, err)
		}
		if raw, err = f.Fetch(ctx, src); err != nil {
			return nil, err
		}
	} else {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("page: resolve %s: %w", src, err)
		}
		if raw, err = os.ReadFile(abs); err != nil {
			return nil, fmt.Errorf("page: read %s: %w", src, err)
		}
		u = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	}

	if readable {
		return Readable(raw, u)
	}
	return Parse(raw, u)
}

// Render writes the whole document.
func (p *Page) Render(w io.Writer) error {
	return html.Render(w, p.Doc)
}
