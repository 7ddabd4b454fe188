// Package extract turns one fetched payload unit into a normalized book record.
//
// Each canonical field is looked up through an ordered list of candidate
// locations: the source's configured mapping first, then built-in fallbacks.
// A candidate is accepted only if it survives normalization; otherwise the
// next one is tried. Fields that never validate stay absent.
package extract

import (
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/ingest/hashes"
	"github.com/lueurxax/book-harvester/internal/ingest/normalize"
	"github.com/lueurxax/book-harvester/internal/ingest/payload"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
)

// fieldSpec applies one raw candidate to a record. It reports whether the value was accepted.
type fieldSpec struct {
	name  string
	apply func(rec *domain.NormalizedRecord, raw string, cfg *domain.SourceConfig) bool
}

var fieldSpecs = []fieldSpec{
	{name: domain.FieldExternalID, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.ExternalID = strings.TrimSpace(normalize.ASCIIDigits(raw))
		return rec.ExternalID != ""
	}},
	{name: domain.FieldTitle, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.Title(raw)
		rec.Title = v

		return ok
	}},
	{name: domain.FieldDescription, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.Description = normalize.Description(raw)
		return rec.Description != ""
	}},
	{name: domain.FieldAuthor, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.Authors = normalize.Authors(raw)
		return len(rec.Authors) > 0
	}},
	{name: domain.FieldCategory, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.Category = normalize.Name(raw)
		return rec.Category != ""
	}},
	{name: domain.FieldPublisher, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.Publisher = normalize.Name(raw)
		return rec.Publisher != ""
	}},
	{name: domain.FieldISBN, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.ISBN(raw)
		rec.ISBN = v

		return ok
	}},
	{name: domain.FieldPublicationYear, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.Year(raw)
		rec.PublicationYear = v

		return ok
	}},
	{name: domain.FieldPagesCount, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.Pages(raw)
		rec.PagesCount = v

		return ok
	}},
	{name: domain.FieldFileSize, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.FileSize(raw)
		rec.FileSize = v

		return ok
	}},
	{name: domain.FieldLanguage, apply: func(rec *domain.NormalizedRecord, raw string, cfg *domain.SourceConfig) bool {
		rec.Language = normalize.LanguageOr(raw, defaultLanguage(cfg))
		return true
	}},
	{name: domain.FieldFormat, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		rec.Format = normalize.Format(raw)
		return true
	}},
	{name: domain.FieldImageURL, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.ImageURL(raw)
		rec.ImageURL = v

		return ok
	}},
	{name: domain.FieldDownloadURL, apply: func(rec *domain.NormalizedRecord, raw string, _ *domain.SourceConfig) bool {
		v, ok := normalize.DownloadURL(raw)
		rec.DownloadURL = v

		return ok
	}},
}

func defaultLanguage(cfg *domain.SourceConfig) string {
	if cfg != nil && cfg.DefaultLanguage != "" {
		return cfg.DefaultLanguage
	}

	return domain.DefaultLanguage
}

// Extractor builds normalized records from payload units.
type Extractor struct {
	logger *zerolog.Logger
}

// New creates an extractor.
func New(logger *zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract produces the normalized record of one unit. It never fails: fields that
// cannot be found or validated are left empty. Callers check Valid for the title.
func (e *Extractor) Extract(unit payload.Unit, cfg *domain.SourceConfig) domain.NormalizedRecord {
	var rec domain.NormalizedRecord

	if unit.Record == nil {
		return rec
	}

	for _, spec := range fieldSpecs {
		e.extractField(&rec, unit, cfg, spec)
	}

	if unit.IsHTML() && unit.Standalone && (rec.Title == "" || rec.Description == "" || len(rec.Authors) == 0) {
		e.readableFallback(&rec, unit)
	}

	rec.Hashes = e.extractHashes(unit, cfg, rec.Title)

	finish(&rec, unit, cfg)

	return rec
}

func (e *Extractor) extractField(rec *domain.NormalizedRecord, unit payload.Unit, cfg *domain.SourceConfig, spec fieldSpec) {
	for _, loc := range candidates(unit, cfg, spec.name) {
		raw, ok := payload.Resolve(unit.Record, loc, spec.name)
		if !ok {
			continue
		}

		if spec.apply(rec, raw, cfg) {
			return
		}

		e.logger.Debug().
			Str("source", sourceName(cfg)).
			Str("field", spec.name).
			Str("location", loc).
			Str("value", clip(raw)).
			Msg("candidate value rejected")
	}
}

func candidates(unit payload.Unit, cfg *domain.SourceConfig, field string) []string {
	var configured []string
	if cfg != nil {
		configured = cfg.Locations(field)
	}

	// an id-addressed record is identified by its address unless the source maps external_id
	if field == domain.FieldExternalID && unit.Standalone && cfg != nil && cfg.Mode() == domain.AddressByID {
		return configured
	}

	if unit.IsHTML() {
		if !unit.Standalone {
			return configured
		}

		return merge(configured, htmlFallbacks[field])
	}

	return merge(configured, jsonFallbacks[field])
}

// finish applies defaults and re-cleans textual fields after all lookups.
func finish(rec *domain.NormalizedRecord, unit payload.Unit, cfg *domain.SourceConfig) {
	if rec.ExternalID == "" {
		rec.ExternalID = unit.FallbackID
	}

	if rec.ExternalID == "" && unit.Address > 0 {
		rec.ExternalID = strconv.FormatInt(unit.Address, 10)
	}

	if rec.Language == "" {
		rec.Language = defaultLanguage(cfg)
	}

	if rec.Format == "" {
		rec.Format = formatFromURL(rec.DownloadURL)
	}

	enhance(rec)
}

func formatFromURL(raw string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(raw)), ".")
	if ext == "" {
		return domain.DefaultFormat
	}

	return normalize.Format(ext)
}

// enhance re-trims and strips site branding from every textual field.
func enhance(rec *domain.NormalizedRecord) {
	if rec.Title != "" {
		if title, ok := normalize.Title(rec.Title); ok {
			rec.Title = title
		} else {
			rec.Title = ""
		}
	}

	rec.Description = normalize.StripBoilerplate(rec.Description)
	rec.Category = normalize.Name(rec.Category)
	rec.Publisher = normalize.Name(rec.Publisher)

	var authors []string
	for _, a := range rec.Authors {
		authors = append(authors, normalize.StripBoilerplate(a))
	}

	rec.Authors = normalize.MergeAuthors(nil, authors)
}

func sourceName(cfg *domain.SourceConfig) string {
	if cfg == nil {
		return ""
	}

	return cfg.Name
}

const maxLoggedValue = 120

func clip(s string) string {
	if len(s) <= maxLoggedValue {
		return s
	}

	return s[:maxLoggedValue] + "..."
}

// Hash extraction.

func (e *Extractor) extractHashes(unit payload.Unit, cfg *domain.SourceConfig, title string) domain.HashBundle {
	found := make(map[hashes.Kind]string)

	root := unit.Record

	// 1 and 2: direct keys and nested paths on the record itself
	for _, kind := range fixedKinds {
		e.probeHash(found, root, cfg, kind, true)
	}

	// 3: item arrays, stopping once md5, sha1 and btih are known
	if !unit.IsHTML() && !haveAll(found, earlyStopKinds) {
		e.scanItems(found, root, cfg, fixedKinds)
	}

	// 4: magnet discovery, then btih from the magnet
	e.probeHash(found, root, cfg, hashes.Magnet, true)

	if found[hashes.Magnet] == "" && unit.IsHTML() {
		if raw, ok := payload.Resolve(root, htmlMagnetSelector, domain.FieldDownloadURL); ok {
			e.accept(found, cfg, hashes.Magnet, raw, htmlMagnetSelector)
		}
	}

	if found[hashes.Magnet] == "" && !unit.IsHTML() {
		e.scanItems(found, root, cfg, []hashes.Kind{hashes.Magnet})
	}

	if found[hashes.BTIH] == "" && found[hashes.Magnet] != "" {
		if btih, ok := hashes.ExtractBTIH(found[hashes.Magnet]); ok {
			found[hashes.BTIH] = btih
		}
	}

	// 5: synthesize a magnet only when none was found
	if found[hashes.Magnet] == "" && found[hashes.BTIH] != "" {
		found[hashes.Magnet] = hashes.ReconstructMagnet(found[hashes.BTIH], title)
	}

	return domain.HashBundle{
		MD5:    found[hashes.MD5],
		SHA1:   found[hashes.SHA1],
		SHA256: found[hashes.SHA256],
		CRC32:  found[hashes.CRC32],
		ED2K:   found[hashes.ED2K],
		BTIH:   found[hashes.BTIH],
		Magnet: found[hashes.Magnet],
	}
}

// probeHash tries configured locations and, when builtin is set and the record is
// JSON, the alias and nested-path tables for one kind.
func (e *Extractor) probeHash(found map[hashes.Kind]string, node payload.Resolvable, cfg *domain.SourceConfig, kind hashes.Kind, withConfigured bool) {
	if found[kind] != "" {
		return
	}

	var locs []string
	if withConfigured && cfg != nil {
		locs = cfg.Locations(string(kind))
	}

	if _, isHTML := node.(*payload.Document); !isHTML {
		locs = merge(locs, hashLocations(kind))
	}

	field := domain.FieldMD5
	if kind == hashes.Magnet {
		field = domain.FieldDownloadURL
	}

	for _, loc := range locs {
		raw, ok := payload.Resolve(node, loc, field)
		if !ok {
			continue
		}

		if e.accept(found, cfg, kind, raw, loc) {
			return
		}
	}
}

func (e *Extractor) scanItems(found map[hashes.Kind]string, root payload.Resolvable, cfg *domain.SourceConfig, kinds []hashes.Kind) {
	for _, arrayPath := range itemArrays {
		arr, ok := root.Locate(arrayPath)
		if !ok {
			continue
		}

		items, ok := arr.List()
		if !ok {
			continue
		}

		for _, item := range items {
			if s, ok := item.Text(); ok && found[hashes.Magnet] == "" && strings.HasPrefix(strings.ToLower(s), "magnet:") {
				e.accept(found, cfg, hashes.Magnet, s, arrayPath)
			}

			for _, kind := range kinds {
				e.probeHash(found, item, cfg, kind, false)
			}

			if haveAll(found, earlyStopKinds) && len(kinds) > 1 {
				return
			}

			if len(kinds) == 1 && found[kinds[0]] != "" {
				return
			}
		}
	}
}

func (e *Extractor) accept(found map[hashes.Kind]string, cfg *domain.SourceConfig, kind hashes.Kind, raw, loc string) bool {
	v, ok := hashes.Validate(raw, kind)
	if !ok {
		observability.HashesRejected.WithLabelValues(string(kind)).Inc()

		e.logger.Debug().
			Str("source", sourceName(cfg)).
			Str("field", string(kind)).
			Str("location", loc).
			Str("value", clip(raw)).
			Msg("invalid hash discarded")

		return false
	}

	found[kind] = v

	return true
}

func haveAll(found map[hashes.Kind]string, kinds []hashes.Kind) bool {
	for _, kind := range kinds {
		if found[kind] == "" {
			return false
		}
	}

	return true
}
