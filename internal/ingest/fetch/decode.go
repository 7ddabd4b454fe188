package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/ingest/payload"
)

// decode splits a response body into records according to the source kind.
func (c *Client) decode(cfg *domain.SourceConfig, address int64, target string, body []byte, status int) Outcome {
	switch cfg.Kind {
	case domain.SourceKindCrawler:
		return c.decodeHTML(cfg, address, target, body, status)
	case domain.SourceKindFeed:
		return c.decodeFeed(cfg, address, body, status)
	default:
		return c.decodeJSON(cfg, address, body, status)
	}
}

// absent is the outcome for a response that holds no records.
func absent(cfg *domain.SourceConfig, status int) Outcome {
	if cfg.Mode() == domain.AddressByPage {
		return EndOfData{Status: status}
	}

	return Missing{Status: status}
}

func decodeFailed(status int, err error) Outcome {
	return Transient{Err: fmt.Errorf("%w: %w", coreerrors.ErrFetchFailed, err), Status: status, Attempts: 1}
}

func itemID(address int64, i int) string {
	return fmt.Sprintf("%d-%d", address, i+1)
}

func (c *Client) decodeJSON(cfg *domain.SourceConfig, address int64, body []byte, status int) Outcome {
	if len(bytes.TrimSpace(body)) == 0 {
		return absent(cfg, status)
	}

	root, err := payload.ParseJSON(body)
	if err != nil {
		return decodeFailed(status, err)
	}

	if cfg.ListPath != "" || root.Kind() == payload.KindList {
		var list payload.Resolvable = root
		if cfg.ListPath != "" {
			node, ok := payload.Walk(root, cfg.ListPath)
			if !ok {
				return absent(cfg, status)
			}

			list = node
		}

		items, _ := list.List()
		if len(items) == 0 {
			return absent(cfg, status)
		}

		units := make([]payload.Unit, 0, len(items))
		for i, item := range items {
			units = append(units, payload.Unit{Address: address, FallbackID: itemID(address, i), Record: item})
		}

		return Records{Units: units, Status: status}
	}

	var record payload.Resolvable = root

	if cfg.RecordPath != "" {
		node, ok := payload.Walk(root, cfg.RecordPath)
		if !ok {
			return absent(cfg, status)
		}

		record = node
	}

	if v, ok := record.(payload.Value); ok && (v.IsNull() || v.Len() == 0) {
		return absent(cfg, status)
	}

	return Records{
		Units: []payload.Unit{{
			Address:    address,
			FallbackID: strconv.FormatInt(address, 10),
			Record:     record,
			Standalone: true,
		}},
		Status: status,
	}
}

func (c *Client) decodeHTML(cfg *domain.SourceConfig, address int64, target string, body []byte, status int) Outcome {
	base, err := url.Parse(target)
	if err != nil {
		base = nil
	}

	doc, err := payload.ParseHTML(bytes.NewReader(body), base)
	if err != nil {
		return decodeFailed(status, err)
	}

	lastPage := false
	if sel := cfg.Pagination.NextPageSelector; sel != "" && doc.Find(sel).Len() == 0 {
		lastPage = true
	}

	if cfg.ItemSelector == "" {
		return Records{
			Units: []payload.Unit{{
				Address:    address,
				FallbackID: strconv.FormatInt(address, 10),
				Record:     doc,
				Standalone: true,
			}},
			LastPage: lastPage,
			Status:   status,
		}
	}

	items := doc.Items(cfg.ItemSelector)
	if len(items) == 0 {
		return absent(cfg, status)
	}

	units := make([]payload.Unit, 0, len(items))
	for i, item := range items {
		units = append(units, payload.Unit{Address: address, FallbackID: itemID(address, i), Record: item})
	}

	return Records{Units: units, LastPage: lastPage, Status: status}
}

func (c *Client) decodeFeed(cfg *domain.SourceConfig, address int64, body []byte, status int) Outcome {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return decodeFailed(status, fmt.Errorf("parse feed: %w", err))
	}

	if len(feed.Items) == 0 {
		return absent(cfg, status)
	}

	units := make([]payload.Unit, 0, len(feed.Items))

	for i, item := range feed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}

		if id == "" {
			id = itemID(address, i)
		}

		units = append(units, payload.Unit{Address: address, FallbackID: id, Record: feedItem(item)})
	}

	return Records{Units: units, Status: status}
}

// feedItem converts a feed entry into a JSON-like record so the usual path
// mappings apply to it.
func feedItem(item *gofeed.Item) payload.Value {
	m := map[string]payload.Value{
		"title":       payload.String(item.Title),
		"description": payload.String(item.Description),
		"content":     payload.String(item.Content),
		"link":        payload.String(item.Link),
		"guid":        payload.String(item.GUID),
		"published":   payload.String(item.Published),
		"categories":  payload.FromAny(item.Categories),
	}

	if item.PublishedParsed != nil {
		m["published"] = payload.String(item.PublishedParsed.Format(time.RFC3339))
	}

	if item.Author != nil {
		m["author"] = payload.String(item.Author.Name)
	}

	authors := make([]payload.Value, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			authors = append(authors, payload.Map(map[string]payload.Value{"name": payload.String(a.Name)}))
		}
	}

	m["authors"] = payload.List(authors...)

	if item.Image != nil {
		m["image"] = payload.String(item.Image.URL)
	}

	enclosures := make([]payload.Value, 0, len(item.Enclosures))
	for _, e := range item.Enclosures {
		if e == nil {
			continue
		}

		enclosures = append(enclosures, payload.Map(map[string]payload.Value{
			"url":    payload.String(e.URL),
			"type":   payload.String(e.Type),
			"length": payload.String(e.Length),
		}))

		if _, ok := m["image"]; !ok && strings.HasPrefix(e.Type, "image/") {
			m["image"] = payload.String(e.URL)
		}
	}

	m["enclosures"] = payload.List(enclosures...)

	ext := make(map[string]payload.Value, len(item.Extensions))
	for ns, fields := range item.Extensions {
		group := make(map[string]payload.Value, len(fields))

		for name, values := range fields {
			if len(values) == 0 {
				continue
			}

			v := payload.String(values[0].Value)
			group[name] = v

			if _, taken := m[ns+":"+name]; !taken {
				m[ns+":"+name] = v
			}
		}

		ext[ns] = payload.Map(group)
	}

	m["extensions"] = payload.Map(ext)

	return payload.Map(m)
}
