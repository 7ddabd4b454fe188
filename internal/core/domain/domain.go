package domain

import (
	"strings"
	"time"
)

// Canonical field names used by source field mappings.
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldAuthor          = "author"
	FieldCategory        = "category"
	FieldPublisher       = "publisher"
	FieldISBN            = "isbn"
	FieldPublicationYear = "publication_year"
	FieldPagesCount      = "pages_count"
	FieldFileSize        = "file_size"
	FieldLanguage        = "language"
	FieldFormat          = "format"
	FieldImageURL        = "image_url"
	FieldDownloadURL     = "download_url"
	FieldExternalID      = "external_id"
	FieldMD5             = "md5"
	FieldSHA1            = "sha1"
	FieldSHA256          = "sha256"
	FieldCRC32           = "crc32"
	FieldED2K            = "ed2k"
	FieldBTIH            = "btih"
	FieldMagnet          = "magnet"
)

// Defaults applied to every normalized record.
const (
	DefaultLanguage = "fa"
	DefaultFormat   = "pdf"
)

// HashBundle holds the content digests known for a book file.
// Every non-empty value has passed hash validation.
type HashBundle struct {
	MD5    string
	SHA1   string
	SHA256 string
	CRC32  string
	ED2K   string
	BTIH   string
	Magnet string
}

// IsEmpty reports whether no digest is known.
func (h HashBundle) IsEmpty() bool {
	return h == HashBundle{}
}

// Count returns the number of populated digests.
func (h HashBundle) Count() int {
	n := 0

	for _, v := range []string{h.MD5, h.SHA1, h.SHA256, h.CRC32, h.ED2K, h.BTIH, h.Magnet} {
		if v != "" {
			n++
		}
	}

	return n
}

// FillEmpty copies digests from other into slots that are still empty and
// returns the merged bundle together with the names of the filled slots.
func (h HashBundle) FillEmpty(other HashBundle) (HashBundle, []string) {
	var filled []string

	fill := func(dst *string, src, name string) {
		if *dst == "" && src != "" {
			*dst = src
			filled = append(filled, name)
		}
	}

	fill(&h.MD5, other.MD5, FieldMD5)
	fill(&h.SHA1, other.SHA1, FieldSHA1)
	fill(&h.SHA256, other.SHA256, FieldSHA256)
	fill(&h.CRC32, other.CRC32, FieldCRC32)
	fill(&h.ED2K, other.ED2K, FieldED2K)
	fill(&h.BTIH, other.BTIH, FieldBTIH)
	fill(&h.Magnet, other.Magnet, FieldMagnet)

	return h, filled
}

// Missing returns the digests of other whose slots are empty in h.
func (h HashBundle) Missing(other HashBundle) HashBundle {
	var out HashBundle

	pick := func(dst *string, have, src string) {
		if have == "" {
			*dst = src
		}
	}

	pick(&out.MD5, h.MD5, other.MD5)
	pick(&out.SHA1, h.SHA1, other.SHA1)
	pick(&out.SHA256, h.SHA256, other.SHA256)
	pick(&out.CRC32, h.CRC32, other.CRC32)
	pick(&out.ED2K, h.ED2K, other.ED2K)
	pick(&out.BTIH, h.BTIH, other.BTIH)

	// a magnet is only taken when it points at the torrent the book already names
	if h.BTIH == "" || strings.EqualFold(magnetInfoHash(other.Magnet), h.BTIH) {
		pick(&out.Magnet, h.Magnet, other.Magnet)
	}

	return out
}

const btihMarker = "urn:btih:"

// magnetInfoHash returns the info hash parameter of a magnet URI, or "".
func magnetInfoHash(magnet string) string {
	i := strings.Index(strings.ToLower(magnet), btihMarker)
	if i < 0 {
		return ""
	}

	v := magnet[i+len(btihMarker):]
	if end := strings.IndexByte(v, '&'); end >= 0 {
		v = v[:end]
	}

	return v
}

// NormalizedRecord is one source unit after extraction and normalization.
// Zero values mean the field is absent.
type NormalizedRecord struct {
	ExternalID      string
	Title           string
	Description     string
	Authors         []string
	Category        string
	Publisher       string
	ISBN            string
	PublicationYear int
	PagesCount      int
	FileSize        int64
	Language        string
	Format          string
	ImageURL        string
	DownloadURL     string
	Hashes          HashBundle
}

// Author returns the comma-joined author list.
func (r NormalizedRecord) Author() string {
	return strings.Join(r.Authors, ", ")
}

// Valid reports whether the record carries the required title.
func (r NormalizedRecord) Valid() bool {
	return strings.TrimSpace(r.Title) != ""
}

// Book is the persisted canonical aggregate.
type Book struct {
	ID              int64
	Fingerprint     string
	Title           string
	Description     string
	ISBN            string
	PublicationYear int
	PagesCount      int
	FileSize        int64
	Language        string
	Format          string
	ImageURL        string
	CategoryID      int64
	Category        string
	PublisherID     int64
	Publisher       string
	Authors         []string
	Images          []string
	Hashes          HashBundle
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookPatch lists fields to fill on an existing book. Zero values are left untouched.
type BookPatch struct {
	Description     string
	ISBN            string
	PublicationYear int
	PagesCount      int
	FileSize        int64
	ImageURL        string
	CategoryID      int64
	PublisherID     int64
	Hashes          HashBundle
}

// IsEmpty reports whether the patch changes nothing.
func (p BookPatch) IsEmpty() bool {
	return p == BookPatch{}
}

// SourceLink ties a book to one external source identifier.
type SourceLink struct {
	BookID       int64
	SourceName   string
	ExternalID   string
	DownloadURL  string
	DiscoveredAt time.Time
}
