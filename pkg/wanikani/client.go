package wanikani

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://api.wanikani.com/v2/"
	DefaultRevision = "20170710"

	// API pages are small; anything larger than this is not a WaniKani response.
	maxPageSize = 32 * 1024 * 1024
)

// Client issues authenticated requests against the WaniKani API.
type Client struct {
	BaseURL    string
	Token      string
	Revision   string
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient creates a client with default base URL and revision.
func NewClient(token string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		Token:      token,
		Revision:   DefaultRevision,
		UserAgent:  "vocabify-cli",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithToken returns a copy of the client authenticating with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

// Configured reports whether an API token is set.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.Token) != ""
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u = u.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// get performs one GET and maps the status. The caller owns the body when
// the returned status is StatusSuccess.
func (c *Client) get(ctx context.Context, rawURL string, since *time.Time) (*http.Response, Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	rev := c.Revision
	if rev == "" {
		rev = DefaultRevision
	}
	req.Header.Set("Wanikani-Revision", rev)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if since != nil {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", rawURL, err)
	}

	status, err := CheckStatus(resp.StatusCode)
	if err != nil {
		resp.Body.Close()
		var unexpected *UnexpectedStatusError
		if errors.As(err, &unexpected) {
			unexpected.URL = rawURL
		}
		return nil, 0, err
	}
	if status != StatusSuccess {
		resp.Body.Close()
		return nil, status, nil
	}
	return resp, status, nil
}

func decodeBody(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.ContentLength > maxPageSize {
		return fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxPageSize)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageSize)).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FormatUpdatedAfter renders a watermark the way the updated_after filter expects it.
func FormatUpdatedAfter(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// FetchAll pages through a collection endpoint and decodes every record as T.
// When since is non-nil only records updated after it are requested, and a
// 304 response ends the walk with an empty result. Pagination stops when
// next_url is absent or points at a page already visited.
func FetchAll[T any](ctx context.Context, c *Client, path string, query url.Values, since *time.Time) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if since != nil {
		q.Set("updated_after", FormatUpdatedAfter(*since))
	}
	next, err := c.endpoint(path, q)
	if err != nil {
		return nil, err
	}

	var out []T
	// Backup to prevent infinite loops on a misbehaving server.
	visited := make(map[string]bool)
	for next != "" && !visited[next] {
		visited[next] = true

		resp, status, err := c.get(ctx, next, since)
		if err != nil {
			return nil, err
		}
		switch status {
		case StatusSuccess:
		case StatusNotModified:
			return []T{}, nil
		default:
			return nil, &StatusError{Status: status, URL: next}
		}

		var page Collection
		if err := decodeBody(resp, &page); err != nil {
			return nil, err
		}
		for i, raw := range page.Data {
			var rec T
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("decode record %d of %s: %w", i, next, err)
			}
			out = append(out, rec)
		}

		next = ""
		if page.Pages.NextURL != nil {
			next = *page.Pages.NextURL
		}
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// FetchAssignments returns assignments changed since the watermark.
func (c *Client) FetchAssignments(ctx context.Context, since *time.Time) ([]Assignment, error) {
	return FetchAll[Assignment](ctx, c, "assignments", nil, since)
}

// FetchStudyMaterials returns study materials changed since the watermark.
func (c *Client) FetchStudyMaterials(ctx context.Context, since *time.Time) ([]StudyMaterial, error) {
	return FetchAll[StudyMaterial](ctx, c, "study_materials", nil, since)
}

// FetchSubjects returns subjects of one type changed since the watermark.
func (c *Client) FetchSubjects(ctx context.Context, t SubjectType, since *time.Time) ([]Subject, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("fetch subjects: invalid subject type %q", t)
	}
	return FetchAll[Subject](ctx, c, "subjects", url.Values{"types": {string(t)}}, since)
}

// FetchUser returns the user profile. A nil user with a nil error means the
// profile has not changed since the watermark.
func (c *Client) FetchUser(ctx context.Context, since *time.Time) (*User, error) {
	u, err := c.endpoint("user", nil)
	if err != nil {
		return nil, err
	}
	resp, status, err := c.get(ctx, u, since)
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusSuccess:
	case StatusNotModified:
		return nil, nil
	default:
		return nil, &StatusError{Status: status, URL: u}
	}
	var user User
	if err := decodeBody(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
