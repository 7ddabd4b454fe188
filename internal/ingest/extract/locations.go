package extract

import (
	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/ingest/hashes"
)

// jsonFallbacks are probed after the configured locations of a JSON record.
var jsonFallbacks = map[string][]string{
	domain.FieldTitle:           {"title", "name", "book_title", "volumeInfo.title"},
	domain.FieldDescription:     {"description", "summary", "desc", "volumeInfo.description"},
	domain.FieldAuthor:          {"author", "authors", "writer", "writers", "volumeInfo.authors"},
	domain.FieldCategory:        {"category", "categories", "genre", "subject"},
	domain.FieldPublisher:       {"publisher", "publisher.name", "volumeInfo.publisher"},
	domain.FieldISBN:            {"isbn", "isbn13", "isbn_13", "isbn10", "isbn_10"},
	domain.FieldPublicationYear: {"publication_year", "year", "published_year", "publish_date", "published_date", "volumeInfo.publishedDate"},
	domain.FieldPagesCount:      {"pages_count", "pages", "page_count", "num_pages", "volumeInfo.pageCount"},
	domain.FieldFileSize:        {"file_size", "filesize", "size", "file.size"},
	domain.FieldLanguage:        {"language", "lang", "volumeInfo.language"},
	domain.FieldFormat:          {"format", "extension", "file_type", "file.format"},
	domain.FieldImageURL:        {"image_url", "image", "cover", "cover_url", "thumbnail", "volumeInfo.imageLinks.thumbnail"},
	domain.FieldDownloadURL:     {"download_url", "download", "file_url", "link", "url"},
	domain.FieldExternalID:      {"id", "external_id", "book_id"},
}

// htmlFallbacks are probed after the configured selectors of a standalone HTML page.
var htmlFallbacks = map[string][]string{
	domain.FieldTitle:       {"meta[property='og:title']", "h1", "title"},
	domain.FieldDescription: {"meta[property='og:description']", "meta[name='description']"},
	domain.FieldAuthor:      {"meta[name='author']", "meta[property='book:author']"},
	domain.FieldISBN:        {"meta[property='book:isbn']"},
	domain.FieldImageURL:    {"meta[property='og:image']"},
}

// hashAliases are direct top-level keys per hash kind, the first search step.
var hashAliases = map[hashes.Kind][]string{
	hashes.MD5:    {"md5", "MD5", "md5_hash", "md5sum", "hash_md5"},
	hashes.SHA1:   {"sha1", "SHA1", "sha1_hash", "sha1sum", "hash_sha1"},
	hashes.SHA256: {"sha256", "SHA256", "sha256_hash", "sha256sum", "hash_sha256"},
	hashes.CRC32:  {"crc32", "CRC32", "crc", "crc32_hash"},
	hashes.ED2K:   {"ed2k", "ED2K", "ed2k_hash", "ed2khash"},
	hashes.BTIH:   {"btih", "BTIH", "info_hash", "infohash", "torrent_hash", "hash_btih"},
	hashes.Magnet: {"magnet", "magnet_link", "magnet_uri", "magnetLink", "magnetURI"},
}

// hashContainers hold nested hash maps, the second search step.
var hashContainers = []string{"hashes", "hash", "checksums", "checksum", "digests", "file", "file_info", "torrent", "download_info", "meta", "identifiers"}

// extraNestedHashPaths are nested locations that do not follow the container.kind shape.
var extraNestedHashPaths = map[hashes.Kind][]string{
	hashes.BTIH:   {"torrent.info_hash", "torrent.infohash", "torrent.hash"},
	hashes.Magnet: {"torrent.magnet_link", "download_info.magnet_link", "links.magnet"},
}

// itemArrays hold per-file or per-mirror sub-records, the third search step.
var itemArrays = []string{"files", "downloads", "mirrors", "links", "torrents", "attachments", "sources"}

// fixedKinds are the hex digests; magnet is handled in its own step.
var fixedKinds = []hashes.Kind{hashes.MD5, hashes.SHA1, hashes.SHA256, hashes.CRC32, hashes.ED2K, hashes.BTIH}

// earlyStopKinds end the item scan once all are known.
var earlyStopKinds = []hashes.Kind{hashes.MD5, hashes.SHA1, hashes.BTIH}

// htmlMagnetSelector finds magnet anchors on crawled pages.
const htmlMagnetSelector = "a[href^='magnet:']"

func hashLocations(kind hashes.Kind) []string {
	locs := append([]string(nil), hashAliases[kind]...)

	for _, container := range hashContainers {
		locs = append(locs, container+"."+string(kind))
	}

	return append(locs, extraNestedHashPaths[kind]...)
}

func merge(lists ...[]string) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, list := range lists {
		for _, loc := range list {
			if _, ok := seen[loc]; ok || loc == "" {
				continue
			}

			seen[loc] = struct{}{}

			out = append(out, loc)
		}
	}

	return out
}
