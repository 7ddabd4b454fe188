package payload

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

const testJSON = `{
	"id": 42,
	"title": "Test Book",
	"price": 12.5,
	"available": true,
	"missing": null,
	"volumeInfo": {
		"authors": ["Kent Beck", "Martin Fowler"],
		"industryIdentifiers": [{"type": "ISBN_13", "identifier": "9780134757599"}]
	},
	"people": [{"name": "Ada"}, {"firstname": "Alan", "lastname": "Turing"}, {"full_name": "Grace Hopper"}],
	"cover": {"url": "https://example.com/c.jpg"},
	"tags": ["", "science"],
	"numbered": {"1": "one"}
}`

func mustParseJSON(t *testing.T, s string) Value {
	t.Helper()

	v, err := ParseJSON([]byte(s))
	require.NoError(t, err)

	return v
}

func TestParseJSON(t *testing.T) {
	v := mustParseJSON(t, testJSON)

	assert.Equal(t, KindMap, v.Kind())

	id, ok := v.Get("id")
	require.True(t, ok)
	assert.Equal(t, KindNumber, id.Kind())

	n, ok := id.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	missing, ok := v.Get("missing")
	require.True(t, ok)
	assert.True(t, missing.IsNull())

	_, err := ParseJSON([]byte("{broken"))
	assert.Error(t, err)
}

func TestWalk(t *testing.T) {
	v := mustParseJSON(t, testJSON)

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{name: "top level string", path: "title", want: "Test Book", wantOK: true},
		{name: "number", path: "id", want: "42", wantOK: true},
		{name: "float", path: "price", want: "12.5", wantOK: true},
		{name: "bool", path: "available", want: "true", wantOK: true},
		{name: "nested list index", path: "volumeInfo.authors.1", want: "Martin Fowler", wantOK: true},
		{name: "bracket index", path: "volumeInfo.industryIdentifiers[0].identifier", want: "9780134757599", wantOK: true},
		{name: "numeric key on map", path: "numbered.1", want: "one", wantOK: true},
		{name: "index out of range", path: "volumeInfo.authors.5", wantOK: false},
		{name: "key on scalar", path: "title.length", wantOK: false},
		{name: "missing key", path: "volumeInfo.publisher", wantOK: false},
		{name: "null is not text", path: "missing", wantOK: false},
		{name: "container is not text", path: "volumeInfo", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Walk(v, tt.path)
			if !ok {
				assert.False(t, tt.wantOK)
				return
			}

			text, ok := got.Text()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestResolveJSON(t *testing.T) {
	v := mustParseJSON(t, testJSON)

	tests := []struct {
		name     string
		location string
		field    string
		want     string
		wantOK   bool
	}{
		{name: "plain field", location: "title", field: domain.FieldTitle, want: "Test Book", wantOK: true},
		{name: "author string list", location: "volumeInfo.authors", field: domain.FieldAuthor, want: "Kent Beck, Martin Fowler", wantOK: true},
		{name: "author structured list", location: "people", field: domain.FieldAuthor, want: "Ada, Alan Turing, Grace Hopper", wantOK: true},
		{name: "author single map", location: "people.0", field: domain.FieldAuthor, want: "Ada", wantOK: true},
		{name: "list for scalar field takes first non-empty", location: "tags", field: domain.FieldCategory, want: "science", wantOK: true},
		{name: "url field from string", location: "cover.url", field: domain.FieldImageURL, want: "https://example.com/c.jpg", wantOK: true},
		{name: "map for scalar field", location: "cover", field: domain.FieldTitle, wantOK: false},
		{name: "absent", location: "nope.deeper", field: domain.FieldTitle, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(v, tt.location, tt.field)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{
		"s":    "x",
		"n":    3,
		"f":    1.5,
		"list": []any{"a", nil},
		"strs": []string{"b"},
	})

	assert.Equal(t, []string{"f", "list", "n", "s", "strs"}, v.Keys())

	n, ok := v.Get("n")
	require.True(t, ok)

	s, _ := n.Scalar()
	assert.Equal(t, "3", s)

	list, _ := v.Get("list")
	assert.Equal(t, 2, list.Len())

	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"n":3`)
}

const testHTML = `<html><head>
<meta property="og:title" content="Meta Title">
</head><body>
<div class="book">
	<h1 class="title"> Clean   Code </h1>
	<span class="author">Robert Martin</span>
	<span class="author">Dean Wampler</span>
	<div class="cover"><img data-src="/img/clean.jpg"></div>
	<a class="dl" href="files/clean.pdf">Download</a>
	<p class="isbn">ISBN: 978-0132350884</p>
</div>
<ul class="results">
	<li class="item"><a href="/b/1">One</a></li>
	<li class="item"><a href="/b/2">Two</a></li>
</ul>
</body></html>`

func mustParseHTML(t *testing.T) *Document {
	t.Helper()

	base, err := url.Parse("https://books.example.com/catalog/page/1")
	require.NoError(t, err)

	doc, err := ParseHTML(strings.NewReader(testHTML), base)
	require.NoError(t, err)

	return doc
}

func TestResolveHTML(t *testing.T) {
	doc := mustParseHTML(t)

	tests := []struct {
		name     string
		location string
		field    string
		want     string
		wantOK   bool
	}{
		{name: "first match text", location: "h1.title", field: domain.FieldTitle, want: "Clean   Code", wantOK: true},
		{name: "meta content", location: "meta[property='og:title']", field: domain.FieldTitle, want: "Meta Title", wantOK: true},
		{name: "authors joined", location: ".author", field: domain.FieldAuthor, want: "Robert Martin, Dean Wampler", wantOK: true},
		{name: "nested img data-src resolved", location: ".cover", field: domain.FieldImageURL, want: "https://books.example.com/img/clean.jpg", wantOK: true},
		{name: "href resolved", location: "a.dl", field: domain.FieldDownloadURL, want: "https://books.example.com/catalog/page/files/clean.pdf", wantOK: true},
		{name: "attribute suffix", location: "a.dl@href", field: domain.FieldExternalID, want: "https://books.example.com/catalog/page/files/clean.pdf", wantOK: true},
		{name: "missing attribute", location: "h1.title@href", field: domain.FieldTitle, wantOK: false},
		{name: "no match", location: ".publisher", field: domain.FieldPublisher, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(doc, tt.location, tt.field)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentItems(t *testing.T) {
	doc := mustParseHTML(t)

	items := doc.Items("li.item")
	require.Len(t, items, 2)

	got, ok := Resolve(items[1], "a", domain.FieldDownloadURL)
	require.True(t, ok)
	assert.Equal(t, "https://books.example.com/b/2", got)

	text, ok := Resolve(items[0], "a", domain.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, "One", text)

	assert.Equal(t, 0, doc.Find(".nothing").Len())
	assert.NotEmpty(t, doc.Raw())
	assert.Equal(t, "books.example.com", doc.BaseURL().Host)
}

func TestDocumentWalk(t *testing.T) {
	doc := mustParseHTML(t)

	node, ok := Walk(doc, ".author.1")
	require.False(t, ok, "css classes are not dotted paths")
	assert.Nil(t, node)

	authors, ok := doc.Key(".author")
	require.True(t, ok)

	second, ok := authors.Index(1)
	require.True(t, ok)

	text, ok := second.Text()
	require.True(t, ok)
	assert.Equal(t, "Dean Wampler", text)
}
