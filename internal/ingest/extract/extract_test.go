package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/ingest/hashes"
	"github.com/lueurxax/book-harvester/internal/ingest/payload"
)

const (
	testMD5  = "d41d8cd98f00b204e9800998ecf8427e"
	testSHA1 = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	testBTIH = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func newExtractor() *Extractor {
	logger := zerolog.Nop()
	return New(&logger)
}

func jsonUnit(t *testing.T, address int64, body string) payload.Unit {
	t.Helper()

	v, err := payload.ParseJSON([]byte(body))
	require.NoError(t, err)

	return payload.Unit{Address: address, Record: v, Standalone: true}
}

func apiSource(fields map[string][]string) *domain.SourceConfig {
	return &domain.SourceConfig{Name: "test-api", Kind: domain.SourceKindAPI, FieldMap: fields}
}

func TestExtractScenarioA(t *testing.T) {
	unit := jsonUnit(t, 7, `{"title":"Test Book","isbn":"1234567890","md5":"D41D8CD98F00B204E9800998ECF8427E"}`)

	rec := newExtractor().Extract(unit, apiSource(nil))

	assert.Equal(t, "Test Book", rec.Title)
	assert.Equal(t, "1234567890", rec.ISBN)
	assert.Equal(t, testMD5, rec.Hashes.MD5)
	assert.Equal(t, "7", rec.ExternalID)
	assert.Equal(t, domain.DefaultLanguage, rec.Language)
	assert.Equal(t, domain.DefaultFormat, rec.Format)
	assert.True(t, rec.Valid())
}

func TestExtractScenarioD(t *testing.T) {
	unit := jsonUnit(t, 1, `{"title":"Hash Book","sha1":"SHA1-XYZ","md5":"`+testMD5+`","pages":"320 pages"}`)

	rec := newExtractor().Extract(unit, apiSource(nil))

	assert.Empty(t, rec.Hashes.SHA1)
	assert.Equal(t, testMD5, rec.Hashes.MD5)
	assert.Equal(t, "Hash Book", rec.Title)
	assert.Equal(t, 320, rec.PagesCount)
}

func TestExtractScenarioE(t *testing.T) {
	magnet := "magnet:?xt=urn:btih:" + testBTIH + "&dn=Book"
	unit := jsonUnit(t, 1, `{"title":"Magnet Book","download_info":{"magnet":"`+magnet+`"}}`)

	rec := newExtractor().Extract(unit, apiSource(nil))

	assert.Equal(t, testBTIH, rec.Hashes.BTIH)
	assert.Equal(t, magnet, rec.Hashes.Magnet)
}

func TestExtractMagnetReconstruction(t *testing.T) {
	unit := jsonUnit(t, 1, `{"title":"Torrent Book","info_hash":"`+strings.ToUpper(testBTIH)+`"}`)

	rec := newExtractor().Extract(unit, apiSource(nil))

	assert.Equal(t, testBTIH, rec.Hashes.BTIH)
	assert.Equal(t, hashes.ReconstructMagnet(testBTIH, "Torrent Book"), rec.Hashes.Magnet)
}

func TestExtractSourceMagnetWins(t *testing.T) {
	other := strings.Repeat("b", 40)
	magnet := "magnet:?xt=urn:btih:" + other

	unit := jsonUnit(t, 1, `{"title":"Both","btih":"`+testBTIH+`","magnet_link":"`+magnet+`"}`)

	rec := newExtractor().Extract(unit, apiSource(nil))

	assert.Equal(t, testBTIH, rec.Hashes.BTIH, "direct btih is kept")
	assert.Equal(t, magnet, rec.Hashes.Magnet, "source magnet is never replaced by a synthetic one")
}

func TestExtractHashSearchOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.HashBundle
	}{
		{
			name: "nested container",
			body: `{"title":"Nested","hashes":{"md5":"` + testMD5 + `","sha1":"` + testSHA1 + `"}}`,
			want: domain.HashBundle{MD5: testMD5, SHA1: testSHA1},
		},
		{
			name: "direct key beats nested",
			body: `{"title":"Prio","md5":"` + testMD5 + `","hashes":{"md5":"` + strings.Repeat("c", 32) + `"}}`,
			want: domain.HashBundle{MD5: testMD5},
		},
		{
			name: "invalid direct falls through to nested",
			body: `{"title":"Fallthrough","md5":"bad","checksums":{"md5":"` + testMD5 + `"}}`,
			want: domain.HashBundle{MD5: testMD5},
		},
		{
			name: "item array scan",
			body: `{"title":"Files","files":[{"name":"a.pdf"},{"md5":"` + testMD5 + `","sha1":"` + testSHA1 + `","info_hash":"` + testBTIH + `"},{"md5":"` + strings.Repeat("e", 32) + `"}]}`,
			want: domain.HashBundle{
				MD5:    testMD5,
				SHA1:   testSHA1,
				BTIH:   testBTIH,
				Magnet: hashes.ReconstructMagnet(testBTIH, "Files"),
			},
		},
		{
			name: "magnet in mirror list",
			body: `{"title":"Mirror","mirrors":["https://example.com/x","magnet:?xt=urn:btih:` + testBTIH + `"]}`,
			want: domain.HashBundle{
				BTIH:   testBTIH,
				Magnet: "magnet:?xt=urn:btih:" + testBTIH,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newExtractor().Extract(jsonUnit(t, 1, tt.body), apiSource(nil))
			assert.Equal(t, tt.want, rec.Hashes)
		})
	}
}

func TestExtractConfiguredLocations(t *testing.T) {
	body := `{
		"id": "ext-9",
		"data": {
			"name": "[PDF] Ignored",
			"book": {"heading": "دانلود کتاب سمفونی مردگان", "writers": [{"name": "عباس معروفی"}, {"name": "عباس معروفی"}]},
			"meta": {"year": "1368", "pages": "۲۸۸", "lang": "Persian", "size": "3.5 MB", "type": "EPUB"},
			"cover": "https://cdn.example.com/c/1.jpg",
			"checksum": {"value": "` + testMD5 + `"}
		}
	}`

	cfg := apiSource(map[string][]string{
		domain.FieldTitle:           {"data.missing", "data.book.heading"},
		domain.FieldAuthor:          {"data.book.writers"},
		domain.FieldPublicationYear: {"data.meta.year"},
		domain.FieldPagesCount:      {"data.meta.pages"},
		domain.FieldLanguage:        {"data.meta.lang"},
		domain.FieldFileSize:        {"data.meta.size"},
		domain.FieldFormat:          {"data.meta.type"},
		domain.FieldImageURL:        {"data.cover"},
		domain.FieldMD5:             {"data.checksum.value"},
	})

	rec := newExtractor().Extract(jsonUnit(t, 9, body), cfg)

	assert.Equal(t, "سمفونی مردگان", rec.Title)
	assert.Equal(t, []string{"عباس معروفی"}, rec.Authors)
	assert.Equal(t, 1368, rec.PublicationYear)
	assert.Equal(t, 288, rec.PagesCount)
	assert.Equal(t, "fa", rec.Language)
	assert.Equal(t, int64(3.5*(1<<20)), rec.FileSize)
	assert.Equal(t, "epub", rec.Format)
	assert.Equal(t, "https://cdn.example.com/c/1.jpg", rec.ImageURL)
	assert.Equal(t, testMD5, rec.Hashes.MD5)
	assert.Equal(t, "9", rec.ExternalID)
}

func TestExtractExternalIDByMode(t *testing.T) {
	body := `{"id": 1007, "book_id": "b-7", "title": "Numbered"}`

	tests := []struct {
		name string
		cfg  *domain.SourceConfig
		unit func(payload.Unit) payload.Unit
		want string
	}{
		{
			name: "id mode uses the address",
			cfg:  apiSource(nil),
			want: "7",
		},
		{
			name: "id mode honours an explicit mapping",
			cfg:  apiSource(map[string][]string{domain.FieldExternalID: {"book_id"}}),
			want: "b-7",
		},
		{
			name: "page mode reads the record id",
			cfg:  &domain.SourceConfig{Name: "pages", Kind: domain.SourceKindAPI, AddressMode: domain.AddressByPage},
			want: "1007",
		},
		{
			name: "list item reads the record id",
			cfg:  apiSource(nil),
			unit: func(u payload.Unit) payload.Unit {
				u.Standalone = false
				u.FallbackID = "7-1"

				return u
			},
			want: "1007",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := jsonUnit(t, 7, body)
			if tt.unit != nil {
				unit = tt.unit(unit)
			}

			rec := newExtractor().Extract(unit, tt.cfg)
			assert.Equal(t, tt.want, rec.ExternalID)
		})
	}
}

func TestExtractRejectsInvalidValues(t *testing.T) {
	body := `{"title":"X","year":"99","pages":"0","image":"/relative.jpg","isbn":"123","size":"20 GB"}`

	rec := newExtractor().Extract(jsonUnit(t, 3, body), apiSource(nil))

	assert.False(t, rec.Valid())
	assert.Zero(t, rec.PublicationYear)
	assert.Zero(t, rec.PagesCount)
	assert.Empty(t, rec.ImageURL)
	assert.Empty(t, rec.ISBN)
	assert.Zero(t, rec.FileSize)
}

func TestExtractFormatFromDownloadURL(t *testing.T) {
	body := `{"title":"Kindle Book","download_url":"https://files.example.com/book.mobi"}`

	rec := newExtractor().Extract(jsonUnit(t, 3, body), apiSource(nil))

	assert.Equal(t, "mobi", rec.Format)
	assert.Equal(t, "https://files.example.com/book.mobi", rec.DownloadURL)
}

func TestExtractFallbackID(t *testing.T) {
	unit := jsonUnit(t, 2, `{"title":"Listed"}`)
	unit.FallbackID = "2-0"

	rec := newExtractor().Extract(unit, apiSource(nil))
	assert.Equal(t, "2-0", rec.ExternalID)
}

func TestExtractNilRecord(t *testing.T) {
	rec := newExtractor().Extract(payload.Unit{Address: 1}, apiSource(nil))
	assert.False(t, rec.Valid())
}

const bookPage = `<html><head><title>Ignored Title</title></head><body>
<div class="book">
	<h2 class="name">The Blind Owl [PDF]</h2>
	<div class="writer">Sadegh Hedayat</div>
	<p class="about">A <b>classic</b> novella.</p>
	<span class="pages">208 صفحه</span>
	<span class="md5">md5: ` + testMD5 + `</span>
	<div class="cover"><img src="/covers/owl.png"></div>
	<a class="torrent" href="magnet:?xt=urn:btih:` + testBTIH + `&dn=owl">magnet</a>
</div>
</body></html>`

func htmlUnit(t *testing.T, body string, standalone bool) payload.Unit {
	t.Helper()

	base, err := url.Parse("https://library.example.com/book/12")
	require.NoError(t, err)

	doc, err := payload.ParseHTML(strings.NewReader(body), base)
	require.NoError(t, err)

	return payload.Unit{Address: 12, Record: doc, Standalone: standalone}
}

func TestExtractHTML(t *testing.T) {
	cfg := &domain.SourceConfig{
		Name: "test-crawler",
		Kind: domain.SourceKindCrawler,
		FieldMap: map[string][]string{
			domain.FieldTitle:       {".book .name"},
			domain.FieldAuthor:      {".writer"},
			domain.FieldDescription: {".about"},
			domain.FieldPagesCount:  {".pages"},
			domain.FieldImageURL:    {".cover"},
			domain.FieldMD5:         {".md5"},
		},
	}

	rec := newExtractor().Extract(htmlUnit(t, bookPage, true), cfg)

	assert.Equal(t, "The Blind Owl", rec.Title)
	assert.Equal(t, []string{"Sadegh Hedayat"}, rec.Authors)
	assert.Equal(t, "A classic novella.", rec.Description)
	assert.Equal(t, 208, rec.PagesCount)
	assert.Equal(t, "https://library.example.com/covers/owl.png", rec.ImageURL)
	assert.Equal(t, testMD5, rec.Hashes.MD5)
	assert.Equal(t, testBTIH, rec.Hashes.BTIH)
	assert.Equal(t, "magnet:?xt=urn:btih:"+testBTIH+"&dn=owl", rec.Hashes.Magnet)
	assert.Equal(t, "12", rec.ExternalID)
}

func TestExtractHTMLFallbackSelectors(t *testing.T) {
	page := `<html><head>
		<meta property="og:title" content="Og Title">
		<meta name="description" content="From meta">
		<meta name="author" content="Meta Author">
	</head><body><h1>Heading</h1></body></html>`

	rec := newExtractor().Extract(htmlUnit(t, page, true), &domain.SourceConfig{Name: "bare", Kind: domain.SourceKindCrawler})

	assert.Equal(t, "Og Title", rec.Title)
	assert.Equal(t, "From meta", rec.Description)
	assert.Equal(t, []string{"Meta Author"}, rec.Authors)
}

func TestExtractHTMLReadableFallback(t *testing.T) {
	para := strings.Repeat("The old lighthouse keeper kept a ledger of every ship that passed the reef at night. ", 6)
	page := `<html><head><title>Keeper of the Reef</title></head><body>
		<div id="nav"><a href="/">Home</a> <a href="/about">About</a></div>
		<article>
			<p>Whales surfaced near the harbour on the first morning of spring. ` + para + `</p>
			<p>` + para + `</p>
			<p>` + para + `</p>
		</article>
	</body></html>`

	rec := newExtractor().Extract(htmlUnit(t, page, true), &domain.SourceConfig{Name: "bare", Kind: domain.SourceKindCrawler})

	assert.Equal(t, "Keeper of the Reef", rec.Title)
	assert.Contains(t, rec.Description, "lighthouse keeper")
}

func TestExtractHTMLItemUsesConfiguredOnly(t *testing.T) {
	page := `<html><body><h1>Page Heading</h1><div class="item"><span class="t">Item Title</span></div></body></html>`

	unit := htmlUnit(t, page, false)
	doc := unit.Record.(*payload.Document)

	items := doc.Items(".item")
	require.Len(t, items, 1)

	unit.Record = items[0]

	cfg := &domain.SourceConfig{Name: "list", Kind: domain.SourceKindCrawler, FieldMap: map[string][]string{
		domain.FieldTitle: {".t"},
	}}

	rec := newExtractor().Extract(unit, cfg)
	assert.Equal(t, "Item Title", rec.Title)

	cfg.FieldMap = nil
	rec = newExtractor().Extract(unit, cfg)
	assert.Empty(t, rec.Title, "item records do not fall back to page-level selectors")
}
