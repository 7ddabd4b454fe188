package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/ingest/payload"
)

func newTestClient() *Client {
	logger := zerolog.Nop()

	return New(&logger)
}

func testHTTP() domain.HTTPConfig {
	return domain.HTTPConfig{
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		VerifySSL:       true,
		FollowRedirects: true,
	}
}

func apiSource(baseURL string) *domain.SourceConfig {
	return &domain.SourceConfig{
		Name:         "api",
		Kind:         domain.SourceKindAPI,
		BaseURL:      baseURL,
		PathTemplate: "/books/{id}",
		HTTP:         testHTTP(),
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.SourceConfig
		addr int64
		want string
	}{
		{
			name: "id placeholder",
			cfg:  domain.SourceConfig{BaseURL: "https://example.com/", PathTemplate: "/api/books/{id}"},
			addr: 12,
			want: "https://example.com/api/books/12",
		},
		{
			name: "page query",
			cfg:  domain.SourceConfig{BaseURL: "https://example.com/list", PathTemplate: "?page={page}", AddressMode: domain.AddressByPage},
			addr: 3,
			want: "https://example.com/list?page=3",
		},
		{
			name: "absolute template",
			cfg:  domain.SourceConfig{BaseURL: "https://ignored.example", PathTemplate: "https://cdn.example.com/b/{id}.json"},
			addr: 5,
			want: "https://cdn.example.com/b/5.json",
		},
		{
			name: "id appended by default",
			cfg:  domain.SourceConfig{BaseURL: "https://example.com/book"},
			addr: 9,
			want: "https://example.com/book/9",
		},
		{
			name: "page source without template",
			cfg:  domain.SourceConfig{BaseURL: "https://example.com/feed.xml", Kind: domain.SourceKindFeed},
			addr: 1,
			want: "https://example.com/feed.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(&tt.cfg, tt.addr))
		})
	}
}

func TestFetchAPIRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/7", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "en", r.Header.Get("Accept-Language"))
		assert.Equal(t, "TestAgent", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"book": {"id": 7, "title": "Test Book"}}}`))
	}))
	defer srv.Close()

	cfg := apiSource(srv.URL)
	cfg.RecordPath = "data.book"
	cfg.HTTP.UserAgent = "TestAgent"
	cfg.HTTP.Headers = map[string]string{"Accept-Language": "en"}
	cfg.HTTP.AuthHeader = "X-Api-Key"
	cfg.HTTP.AuthToken = "secret"

	out := newTestClient().Fetch(context.Background(), cfg, 7)

	recs, ok := out.(Records)
	require.True(t, ok, "got %T", out)
	require.Len(t, recs.Units, 1)

	unit := recs.Units[0]
	assert.Equal(t, int64(7), unit.Address)
	assert.Equal(t, "7", unit.FallbackID)
	assert.True(t, unit.Standalone)
	assert.Equal(t, http.StatusOK, recs.Status)

	title, ok := payload.Resolve(unit.Record, "title", domain.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "Test Book", title)
}

func TestFetchAPIList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"results": []}`))
			return
		}

		_, _ = w.Write([]byte(`{"results": [{"id": 1, "title": "One"}, {"id": 2, "title": "Two"}]}`))
	}))
	defer srv.Close()

	cfg := &domain.SourceConfig{
		Name:         "list",
		Kind:         domain.SourceKindAPI,
		BaseURL:      srv.URL,
		PathTemplate: "/books?page={page}",
		AddressMode:  domain.AddressByPage,
		ListPath:     "results",
		HTTP:         testHTTP(),
	}

	client := newTestClient()

	recs, ok := client.Fetch(context.Background(), cfg, 1).(Records)
	require.True(t, ok)
	require.Len(t, recs.Units, 2)
	assert.Equal(t, "1-2", recs.Units[1].FallbackID)
	assert.False(t, recs.Units[0].Standalone)

	assert.IsType(t, EndOfData{}, client.Fetch(context.Background(), cfg, 2))
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tests := []struct {
		name string
		mode domain.AddressMode
		want Outcome
	}{
		{name: "id mode is permanent", mode: domain.AddressByID, want: Missing{Status: http.StatusNotFound}},
		{name: "page mode ends data", mode: domain.AddressByPage, want: EndOfData{Status: http.StatusNotFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := apiSource(srv.URL)
			cfg.AddressMode = tt.mode

			assert.Equal(t, tt.want, newTestClient().Fetch(context.Background(), cfg, 3))
		})
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"title": "Eventually"}`))
		}
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), apiSource(srv.URL), 1)

	assert.IsType(t, Records{}, out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := apiSource(srv.URL)
	cfg.HTTP.MaxRetries = 1

	out := newTestClient().Fetch(context.Background(), cfg, 1)

	tr, ok := out.(Transient)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, http.StatusBadGateway, tr.Status)
	assert.Equal(t, 2, tr.Attempts)
	assert.ErrorIs(t, tr.Err, coreerrors.ErrFetchFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), apiSource(srv.URL), 1)

	tr, ok := out.(Transient)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, tr.Status)
	assert.Equal(t, 1, tr.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/books/1" {
			http.Redirect(w, r, "/moved/1", http.StatusFound)
			return
		}

		_, _ = w.Write([]byte(`{"title": "Moved"}`))
	}))
	defer srv.Close()

	t.Run("followed", func(t *testing.T) {
		assert.IsType(t, Records{}, newTestClient().Fetch(context.Background(), apiSource(srv.URL), 1))
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := apiSource(srv.URL)
		cfg.HTTP.FollowRedirects = false

		tr, ok := newTestClient().Fetch(context.Background(), cfg, 1).(Transient)
		require.True(t, ok)
		assert.Equal(t, http.StatusFound, tr.Status)
	})
}

func TestFetchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title": `))
	}))
	defer srv.Close()

	tr, ok := newTestClient().Fetch(context.Background(), apiSource(srv.URL), 1).(Transient)
	require.True(t, ok)
	assert.ErrorIs(t, tr.Err, coreerrors.ErrFetchFailed)
}

func TestFetchCrawlerItems(t *testing.T) {
	page := `<html><body>
<div class="book"><h2>First Book</h2><a href="/dl/1.pdf">download</a></div>
<div class="book"><h2>Second Book</h2><a href="/dl/2.pdf">download</a></div>
%s
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next := `<a class="next" href="?page=2">next</a>`
		if r.URL.Query().Get("page") == "2" {
			next = ""
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, page, next)
	}))
	defer srv.Close()

	cfg := &domain.SourceConfig{
		Name:         "crawler",
		Kind:         domain.SourceKindCrawler,
		BaseURL:      srv.URL,
		PathTemplate: "/list?page={page}",
		ItemSelector: "div.book",
		Pagination:   domain.Pagination{Enabled: true, NextPageSelector: "a.next"},
		HTTP:         testHTTP(),
	}

	client := newTestClient()

	first, ok := client.Fetch(context.Background(), cfg, 1).(Records)
	require.True(t, ok)
	require.Len(t, first.Units, 2)
	assert.False(t, first.LastPage)
	assert.True(t, first.Units[0].IsHTML())

	title, ok := payload.Resolve(first.Units[1].Record, "h2", domain.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "Second Book", title)

	link, ok := payload.Resolve(first.Units[0].Record, "a", domain.FieldDownloadURL)
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/dl/1.pdf", link)

	last, ok := client.Fetch(context.Background(), cfg, 2).(Records)
	require.True(t, ok)
	assert.True(t, last.LastPage)
}

func TestFetchCrawlerStandalonePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Book Page</title></head><body><h1>Book</h1></body></html>`))
	}))
	defer srv.Close()

	cfg := &domain.SourceConfig{
		Name:         "pages",
		Kind:         domain.SourceKindCrawler,
		BaseURL:      srv.URL,
		PathTemplate: "/book/{id}",
		HTTP:         testHTTP(),
	}

	recs, ok := newTestClient().Fetch(context.Background(), cfg, 42).(Records)
	require.True(t, ok)
	require.Len(t, recs.Units, 1)
	assert.True(t, recs.Units[0].Standalone)
	assert.Equal(t, "42", recs.Units[0].FallbackID)
}

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>New books</title>
  <item>
    <title>Feed Book</title>
    <link>https://example.com/books/1</link>
    <guid>book-1</guid>
    <description>A description</description>
    <dc:creator>Jane Writer</dc:creator>
    <category>Fiction</category>
    <enclosure url="https://example.com/files/1.epub" length="1024" type="application/epub+zip"/>
  </item>
  <item>
    <title>Second Feed Book</title>
    <link>https://example.com/books/2</link>
  </item>
</channel>
</rss>`

func TestFetchFeed(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	cfg := &domain.SourceConfig{
		Name:    "feed",
		Kind:    domain.SourceKindFeed,
		BaseURL: srv.URL + "/feed.xml",
		HTTP:    testHTTP(),
	}

	client := newTestClient()

	recs, ok := client.Fetch(context.Background(), cfg, 1).(Records)
	require.True(t, ok)
	require.Len(t, recs.Units, 2)

	first := recs.Units[0]
	assert.Equal(t, "book-1", first.FallbackID)
	assert.Equal(t, "https://example.com/books/2", recs.Units[1].FallbackID)

	for path, want := range map[string]string{
		"title":              "Feed Book",
		"description":        "A description",
		"categories":         "Fiction",
		"enclosures.0.url":   "https://example.com/files/1.epub",
		"enclosures[0].type": "application/epub+zip",
	} {
		got, ok := payload.Resolve(first.Record, path, domain.FieldTitle)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	author, ok := payload.Resolve(first.Record, "author", domain.FieldAuthor)
	require.True(t, ok)
	assert.Equal(t, "Jane Writer", author)

	assert.IsType(t, EndOfData{}, client.Fetch(context.Background(), cfg, 2))
	assert.Equal(t, int32(1), calls.Load())
}
