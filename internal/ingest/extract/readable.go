package extract

import (
	"bytes"

	"github.com/go-shiori/go-readability"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/ingest/normalize"
	"github.com/lueurxax/book-harvester/internal/ingest/payload"
)

// readableFallback fills title, description and author of a standalone page
// from the reader-mode parse when the selectors found nothing.
func (e *Extractor) readableFallback(rec *domain.NormalizedRecord, unit payload.Unit) {
	doc, ok := unit.Record.(*payload.Document)
	if !ok || len(doc.Raw()) == 0 || doc.BaseURL() == nil {
		return
	}

	article, err := readability.FromReader(bytes.NewReader(doc.Raw()), doc.BaseURL())
	if err != nil {
		e.logger.Debug().Err(err).Int64("address", unit.Address).Msg("readability parse failed")
		return
	}

	if article.Node == nil {
		return
	}

	if rec.Title == "" {
		if title, ok := normalize.Title(article.Title); ok {
			rec.Title = title
		}
	}

	if rec.Description == "" {
		rec.Description = normalize.Description(coalesce(article.Excerpt, articleText(article)))
	}

	if byline := article.Byline; len(rec.Authors) == 0 && byline != "" {
		rec.Authors = normalize.Authors(byline)
	}
}

func articleText(article readability.Article) string {
	return article.TextContent
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
