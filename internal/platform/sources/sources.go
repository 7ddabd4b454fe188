// Package sources loads harvesting source definitions from YAML.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

// Defaults applied to fields a source file leaves unset.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultBatchSize  = 100
)

// File is the top-level document of a sources file.
type File struct {
	Sources []Source `yaml:"sources"`
}

// Source is one entry of a sources file.
type Source struct {
	Name            string               `yaml:"name"`
	Enabled         *bool                `yaml:"enabled"`
	Kind            string               `yaml:"kind"`
	BaseURL         string               `yaml:"base_url"`
	PathTemplate    string               `yaml:"path_template"`
	AddressMode     string               `yaml:"address_mode"`
	FieldMap        map[string]Locations `yaml:"field_map"`
	ListPath        string               `yaml:"list_path"`
	RecordPath      string               `yaml:"record_path"`
	ItemSelector    string               `yaml:"item_selector"`
	Pagination      Pagination           `yaml:"pagination"`
	Range           Range                `yaml:"range"`
	HTTP            HTTP                 `yaml:"http"`
	Concurrency     int                  `yaml:"concurrency"`
	ForceReprocess  bool                 `yaml:"force_reprocess"`
	EnrichThreshold int                  `yaml:"enrich_threshold"`
	DefaultLanguage string               `yaml:"default_language"`
}

// Pagination mirrors domain.Pagination.
type Pagination struct {
	Enabled          bool   `yaml:"enabled"`
	NextPageSelector string `yaml:"next_page_selector"`
	MaxPages         int    `yaml:"max_pages"`
}

// Range mirrors domain.RangeConfig.
type Range struct {
	StartID           int64 `yaml:"start_id"`
	MaxID             int64 `yaml:"max_id"`
	AutoResume        bool  `yaml:"auto_resume"`
	BatchSize         int   `yaml:"batch_size"`
	FillMissingFields bool  `yaml:"fill_missing"`
	GapLimit          int   `yaml:"gap_limit"`
}

// HTTP mirrors domain.HTTPConfig. Pointer fields distinguish unset from false or zero.
type HTTP struct {
	Timeout         time.Duration     `yaml:"timeout"`
	MaxRetries      *int              `yaml:"max_retries"`
	RetryDelay      time.Duration     `yaml:"retry_delay"`
	VerifySSL       *bool             `yaml:"verify_ssl"`
	FollowRedirects *bool             `yaml:"follow_redirects"`
	RateLimitRPS    float64           `yaml:"rate_limit_rps"`
	UserAgent       string            `yaml:"user_agent"`
	Headers         map[string]string `yaml:"headers"`
	AuthHeader      string            `yaml:"auth_header"`
	AuthToken       string            `yaml:"auth_token"`
}

// Locations accepts either a single location or a list of them.
type Locations []string

// UnmarshalYAML decodes a scalar or a sequence of scalars.
func (l *Locations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = Locations{node.Value}

		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}

		*l = list

		return nil
	default:
		return fmt.Errorf("line %d: field locations must be a string or a list", node.Line)
	}
}

// LoadFile reads and validates the sources file at path.
func LoadFile(path string) ([]*domain.SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a sources document and returns the enabled sources with
// defaults applied. Environment references like ${TOKEN} are expanded in
// auth tokens and header values.
func Parse(data []byte) ([]*domain.SourceConfig, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse sources: %w", coreerrors.ErrInvalidSourceConfig, err)
	}

	seen := make(map[string]bool, len(f.Sources))
	out := make([]*domain.SourceConfig, 0, len(f.Sources))

	var errs []error

	for i, s := range f.Sources {
		cfg, err := s.toDomain()
		if err != nil {
			errs = append(errs, fmt.Errorf("source #%d %q: %w", i+1, s.Name, err))

			continue
		}

		key := strings.ToLower(cfg.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("source #%d %q: %w: duplicate name", i+1, s.Name, coreerrors.ErrInvalidSourceConfig))

			continue
		}

		seen[key] = true

		if s.Enabled != nil && !*s.Enabled {
			continue
		}

		out = append(out, cfg)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return out, nil
}

func (s Source) toDomain() (*domain.SourceConfig, error) {
	cfg := &domain.SourceConfig{
		Name:            strings.TrimSpace(s.Name),
		Kind:            domain.SourceKind(strings.ToLower(strings.TrimSpace(s.Kind))),
		BaseURL:         strings.TrimSpace(s.BaseURL),
		PathTemplate:    strings.TrimSpace(s.PathTemplate),
		AddressMode:     domain.AddressMode(strings.ToLower(strings.TrimSpace(s.AddressMode))),
		ListPath:        s.ListPath,
		RecordPath:      s.RecordPath,
		ItemSelector:    s.ItemSelector,
		Concurrency:     s.Concurrency,
		ForceReprocess:  s.ForceReprocess,
		EnrichThreshold: s.EnrichThreshold,
		DefaultLanguage: strings.ToLower(strings.TrimSpace(s.DefaultLanguage)),
		Pagination: domain.Pagination{
			Enabled:          s.Pagination.Enabled,
			NextPageSelector: s.Pagination.NextPageSelector,
			MaxPages:         s.Pagination.MaxPages,
		},
		Range: domain.RangeConfig{
			StartID:           s.Range.StartID,
			MaxID:             s.Range.MaxID,
			AutoResume:        s.Range.AutoResume,
			BatchSize:         s.Range.BatchSize,
			FillMissingFields: s.Range.FillMissingFields,
			GapLimit:          s.Range.GapLimit,
		},
		HTTP: s.HTTP.toDomain(),
	}

	if cfg.Kind == "" {
		cfg.Kind = domain.SourceKindAPI
	}

	if cfg.Range.BatchSize <= 0 {
		cfg.Range.BatchSize = DefaultBatchSize
	}

	if len(s.FieldMap) > 0 {
		cfg.FieldMap = make(map[string][]string, len(s.FieldMap))
		for field, locs := range s.FieldMap {
			cfg.FieldMap[strings.ToLower(strings.TrimSpace(field))] = []string(locs)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (h HTTP) toDomain() domain.HTTPConfig {
	out := domain.HTTPConfig{
		Timeout:         h.Timeout,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      h.RetryDelay,
		VerifySSL:       true,
		FollowRedirects: true,
		RateLimitRPS:    h.RateLimitRPS,
		UserAgent:       h.UserAgent,
		AuthHeader:      h.AuthHeader,
		AuthToken:       os.ExpandEnv(h.AuthToken),
	}

	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}

	if out.RetryDelay <= 0 {
		out.RetryDelay = DefaultRetryDelay
	}

	if h.MaxRetries != nil {
		out.MaxRetries = *h.MaxRetries
	}

	if h.VerifySSL != nil {
		out.VerifySSL = *h.VerifySSL
	}

	if h.FollowRedirects != nil {
		out.FollowRedirects = *h.FollowRedirects
	}

	if len(h.Headers) > 0 {
		out.Headers = make(map[string]string, len(h.Headers))
		for k, v := range h.Headers {
			out.Headers[k] = os.ExpandEnv(v)
		}
	}

	return out
}

func validate(cfg *domain.SourceConfig) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", coreerrors.ErrInvalidSourceConfig, fmt.Sprintf(format, args...))
	}

	if cfg.Name == "" {
		return invalid("name is required")
	}

	switch cfg.Kind {
	case domain.SourceKindAPI, domain.SourceKindCrawler, domain.SourceKindFeed:
	default:
		return invalid("unknown kind %q", cfg.Kind)
	}

	switch cfg.AddressMode {
	case "", domain.AddressByID, domain.AddressByPage:
	default:
		return invalid("unknown address_mode %q", cfg.AddressMode)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("base_url must be an absolute http(s) URL, got %q", cfg.BaseURL)
	}

	if cfg.Kind == domain.SourceKindCrawler && cfg.ItemSelector != "" && len(cfg.Locations(domain.FieldTitle)) == 0 {
		return invalid("crawler with item_selector needs a field_map entry for title")
	}

	if cfg.Range.StartID < 0 || cfg.Range.MaxID < 0 {
		return invalid("range ids must not be negative")
	}

	if cfg.Range.MaxID > 0 && cfg.Range.StartID > cfg.Range.MaxID {
		return invalid("range.start_id %d is past range.max_id %d", cfg.Range.StartID, cfg.Range.MaxID)
	}

	if cfg.HTTP.MaxRetries < 0 {
		return invalid("http.max_retries must not be negative")
	}

	if cfg.HTTP.RateLimitRPS < 0 {
		return invalid("http.rate_limit_rps must not be negative")
	}

	if cfg.Concurrency < 0 || cfg.EnrichThreshold < 0 {
		return invalid("concurrency and enrich_threshold must not be negative")
	}

	return nil
}

// Filter keeps the sources for which keep returns true.
func Filter(cfgs []*domain.SourceConfig, keep func(name string) bool) []*domain.SourceConfig {
	out := cfgs[:0:0]

	for _, c := range cfgs {
		if keep(c.Name) {
			out = append(out, c)
		}
	}

	return out
}
