package domain

import "time"

// SourceKind selects how a source is fetched and parsed.
type SourceKind string

const (
	SourceKindAPI     SourceKind = "api"
	SourceKindCrawler SourceKind = "crawler"
	SourceKindFeed    SourceKind = "feed"
)

// AddressMode tells whether unit addresses are record ids or page numbers.
type AddressMode string

const (
	AddressByID   AddressMode = "id"
	AddressByPage AddressMode = "page"
)

// SourceConfig is the read-only, per-run description of one source.
type SourceConfig struct {
	Name         string
	Kind         SourceKind
	BaseURL      string
	PathTemplate string
	AddressMode  AddressMode

	// FieldMap maps a canonical field name to an ordered list of candidate
	// locations: dotted paths for api/feed sources, CSS selectors for crawler sources.
	FieldMap map[string][]string

	// ListPath points at the record array inside an api response.
	ListPath string
	// RecordPath points at the single record inside an api response.
	RecordPath string
	// ItemSelector selects one node per record on a crawler page.
	ItemSelector string

	Pagination Pagination
	Range      RangeConfig
	HTTP       HTTPConfig

	Concurrency     int
	ForceReprocess  bool
	EnrichThreshold int
	DefaultLanguage string
}

// Pagination controls page-addressed sources.
type Pagination struct {
	Enabled          bool
	NextPageSelector string
	MaxPages         int
}

// RangeConfig controls where iteration starts and how far one run goes.
type RangeConfig struct {
	StartID           int64
	MaxID             int64
	AutoResume        bool
	BatchSize         int
	FillMissingFields bool
	GapLimit          int
}

// HTTPConfig is consumed by the fetch layer.
type HTTPConfig struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	VerifySSL       bool
	FollowRedirects bool
	RateLimitRPS    float64
	UserAgent       string
	Headers         map[string]string
	AuthHeader      string
	AuthToken       string
}

// Locations returns the candidate locations configured for a field.
func (c *SourceConfig) Locations(field string) []string {
	if c.FieldMap == nil {
		return nil
	}

	return c.FieldMap[field]
}

// Mode returns the effective address mode.
func (c *SourceConfig) Mode() AddressMode {
	if c.AddressMode != "" {
		return c.AddressMode
	}

	if c.Pagination.Enabled || c.Kind == SourceKindFeed {
		return AddressByPage
	}

	return AddressByID
}
