package page

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-shiori/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/moon_article.html")
	require.NoError(t, err)
	return b
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	body := fixture(t)
	var ua, lang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		lang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}))
	defer srv.Close()

	got, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Contains(t, ua, "Mozilla/5.0")
	assert.Contains(t, lang, "en-US")
}

func TestFetchRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 64))
	}))
	defer srv.Close()

	f := NewFetcher(0)
	f.MaxBodySize = 16
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	f.MaxBodySize = 64
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, got, 64)
}

func TestParseStripsRuby(t *testing.T) {
	p, err := Parse(fixture(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Notes on the Moon", p.Title)
	assert.Equal(t, "", p.Domain())

	text := dom.TextContent(p.Body())
	assert.Contains(t, text, "about the 月 in poetry")
	assert.NotContains(t, text, "つき")
}

func TestLoadFromServerAndFile(t *testing.T) {
	body := fixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	remote, err := Load(context.Background(), NewFetcher(0), srv.URL+"/notes", false)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", remote.Domain())

	local, err := Load(context.Background(), NewFetcher(0), "testdata/moon_article.html", false)
	require.NoError(t, err)
	assert.Equal(t, "file", local.URL.Scheme)
	assert.Equal(t, "", local.Domain())

	_, err = Load(context.Background(), NewFetcher(0), "testdata/missing.html", false)
	assert.Error(t, err)
}

func TestReadableKeepsArticleText(t *testing.T) {
	p, err := Load(context.Background(), NewFetcher(0), "testdata/moon_article.html", true)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, p.Render(&out))
	html := out.String()
	assert.Contains(t, html, "<article>")
	assert.Contains(t, html, "closest companion of the Earth")
	assert.NotContains(t, html, "つき")
}
