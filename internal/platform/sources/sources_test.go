package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

const sampleFile = `
sources:
  - name: library
    kind: api
    base_url: https://library.example/api
    path_template: /books/{id}
    record_path: data
    field_map:
      title: [data.title, name]
      author: writers
      md5: files.0.md5
    range:
      auto_resume: true
      batch_size: 50
      fill_missing: true
      gap_limit: 20
    http:
      timeout: 10s
      max_retries: 0
      retry_delay: 500ms
      verify_ssl: false
      rate_limit_rps: 2.5
      headers:
        X-Client: harvester
      auth_token: ${LIBRARY_TOKEN}
    enrich_threshold: 1
  - name: bookshop
    kind: crawler
    base_url: https://shop.example
    path_template: /catalog?page={page}
    item_selector: div.book
    field_map:
      title: h2.title
      image_url: img.cover
    pagination:
      enabled: true
      next_page_selector: a.next
      max_pages: 30
  - name: retired
    enabled: false
    base_url: https://old.example
`

func TestParse(t *testing.T) {
	t.Setenv("LIBRARY_TOKEN", "secret")

	cfgs, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	lib := cfgs[0]
	assert.Equal(t, "library", lib.Name)
	assert.Equal(t, domain.SourceKindAPI, lib.Kind)
	assert.Equal(t, domain.AddressByID, lib.Mode())
	assert.Equal(t, []string{"data.title", "name"}, lib.Locations(domain.FieldTitle))
	assert.Equal(t, []string{"writers"}, lib.Locations(domain.FieldAuthor))
	assert.Equal(t, 50, lib.Range.BatchSize)
	assert.True(t, lib.Range.FillMissingFields)
	assert.Equal(t, 20, lib.Range.GapLimit)
	assert.Equal(t, 10*time.Second, lib.HTTP.Timeout)
	assert.Equal(t, 0, lib.HTTP.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, lib.HTTP.RetryDelay)
	assert.False(t, lib.HTTP.VerifySSL)
	assert.True(t, lib.HTTP.FollowRedirects)
	assert.InDelta(t, 2.5, lib.HTTP.RateLimitRPS, 0.001)
	assert.Equal(t, "secret", lib.HTTP.AuthToken)
	assert.Equal(t, "harvester", lib.HTTP.Headers["X-Client"])
	assert.Equal(t, 1, lib.EnrichThreshold)

	shop := cfgs[1]
	assert.Equal(t, domain.SourceKindCrawler, shop.Kind)
	assert.Equal(t, domain.AddressByPage, shop.Mode())
	assert.Equal(t, "a.next", shop.Pagination.NextPageSelector)
	assert.Equal(t, 30, shop.Pagination.MaxPages)
}

func TestParseDefaults(t *testing.T) {
	cfgs, err := Parse([]byte(`
sources:
  - name: minimal
    base_url: http://minimal.example
`))
	require.NoError(t, err)
	require.Len(t, cfgs, 1)

	c := cfgs[0]
	assert.Equal(t, domain.SourceKindAPI, c.Kind)
	assert.Equal(t, DefaultBatchSize, c.Range.BatchSize)
	assert.Equal(t, DefaultTimeout, c.HTTP.Timeout)
	assert.Equal(t, DefaultMaxRetries, c.HTTP.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, c.HTTP.RetryDelay)
	assert.True(t, c.HTTP.VerifySSL)
	assert.True(t, c.HTTP.FollowRedirects)
	assert.Nil(t, c.FieldMap)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing name", doc: "sources:\n  - base_url: https://a.example\n"},
		{name: "unknown kind", doc: "sources:\n  - name: a\n    kind: ftp\n    base_url: https://a.example\n"},
		{name: "relative base url", doc: "sources:\n  - name: a\n    base_url: /api\n"},
		{name: "unknown address mode", doc: "sources:\n  - name: a\n    base_url: https://a.example\n    address_mode: cursor\n"},
		{name: "crawler items without title", doc: "sources:\n  - name: a\n    kind: crawler\n    base_url: https://a.example\n    item_selector: div\n"},
		{name: "start past max", doc: "sources:\n  - name: a\n    base_url: https://a.example\n    range:\n      start_id: 10\n      max_id: 5\n"},
		{name: "negative retries", doc: "sources:\n  - name: a\n    base_url: https://a.example\n    http:\n      max_retries: -1\n"},
		{name: "duplicate names", doc: "sources:\n  - name: a\n    base_url: https://a.example\n  - name: A\n    base_url: https://b.example\n"},
		{name: "bad locations", doc: "sources:\n  - name: a\n    base_url: https://a.example\n    field_map:\n      title: {path: x}\n"},
		{name: "not yaml", doc: "sources: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))

			require.Error(t, err)
			assert.ErrorIs(t, err, coreerrors.ErrInvalidSourceConfig)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	cfgs, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfgs, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	cfgs := []*domain.SourceConfig{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	got := Filter(cfgs, func(name string) bool { return name != "b" })

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
	assert.Len(t, cfgs, 3)
}
