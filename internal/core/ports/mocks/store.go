package mocks

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

type linkKey struct {
	bookID     int64
	sourceName string
	externalID string
}

// Store is a thread-safe in-memory implementation of ports.Store.
// It enforces the same uniqueness rules as the PostgreSQL schema.
type Store struct {
	mu sync.RWMutex

	nextID        int64
	books         map[int64]*domain.Book
	byFingerprint map[string]int64
	links         map[linkKey]domain.SourceLink
	authors       map[string]int64
	authorNames   map[int64]string
	categories    map[string]int64
	publishers    map[string]int64
	taxonomyNames map[int64]string
	cursors       map[string]domain.RunCursor
	failures      []domain.FailureRecord
	sources       map[string]domain.SourceConfig
	runs          []domain.RunSummary

	// FindBookByFingerprintFn allows overriding FindBookByFingerprint behavior.
	FindBookByFingerprintFn func(ctx context.Context, fingerprint string) (*domain.Book, error)

	// CreateBookFn allows overriding CreateBook behavior.
	CreateBookFn func(ctx context.Context, book *domain.Book) (int64, error)

	// UpdateBookFn allows overriding UpdateBook behavior.
	UpdateBookFn func(ctx context.Context, bookID int64, patch domain.BookPatch) error

	// CreateSourceLinkFn allows overriding CreateSourceLink behavior.
	CreateSourceLinkFn func(ctx context.Context, link domain.SourceLink) (bool, error)

	// RecordFailureFn allows overriding RecordFailure behavior.
	RecordFailureFn func(ctx context.Context, failure domain.FailureRecord) error
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		books:         make(map[int64]*domain.Book),
		byFingerprint: make(map[string]int64),
		links:         make(map[linkKey]domain.SourceLink),
		authors:       make(map[string]int64),
		authorNames:   make(map[int64]string),
		categories:    make(map[string]int64),
		publishers:    make(map[string]int64),
		taxonomyNames: make(map[int64]string),
		cursors:       make(map[string]domain.RunCursor),
		sources:       make(map[string]domain.SourceConfig),
	}
}

func (s *Store) id() int64 {
	s.nextID++

	return s.nextID
}

// FindBookByFingerprint returns a copy of the stored book or nil.
func (s *Store) FindBookByFingerprint(ctx context.Context, fingerprint string) (*domain.Book, error) {
	if s.FindBookByFingerprintFn != nil {
		return s.FindBookByFingerprintFn(ctx, fingerprint)
	}

	return s.BookByFingerprint(fingerprint), nil
}

// BookByFingerprint is the unhooked lookup, usable from override functions.
func (s *Store) BookByFingerprint(fingerprint string) *domain.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil
	}

	return s.copyBook(id)
}

// SourceLinkExists reports whether the link tuple is stored.
func (s *Store) SourceLinkExists(_ context.Context, bookID int64, sourceName, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.links[linkKey{bookID, sourceName, externalID}]

	return ok, nil
}

// CreateBook stores a new book, rejecting a taken fingerprint.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) (int64, error) {
	if s.CreateBookFn != nil {
		return s.CreateBookFn(ctx, book)
	}

	return s.InsertBook(book)
}

// InsertBook is the unhooked create, usable from override functions.
func (s *Store) InsertBook(book *domain.Book) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byFingerprint[book.Fingerprint]; ok {
		return 0, coreerrors.ErrDuplicateFingerprint
	}

	stored := *book
	stored.ID = s.id()
	stored.Authors = nil
	stored.Images = nil
	stored.Category = s.taxonomyNames[stored.CategoryID]
	stored.Publisher = s.taxonomyNames[stored.PublisherID]
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt

	s.books[stored.ID] = &stored
	s.byFingerprint[stored.Fingerprint] = stored.ID

	return stored.ID, nil
}

// UpdateBook fills empty columns only.
func (s *Store) UpdateBook(ctx context.Context, bookID int64, patch domain.BookPatch) error {
	if s.UpdateBookFn != nil {
		return s.UpdateBookFn(ctx, bookID, patch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return coreerrors.ErrBookNotFound
	}

	fillString(&b.Description, patch.Description)
	fillString(&b.ISBN, patch.ISBN)
	fillString(&b.ImageURL, patch.ImageURL)
	fillInt(&b.PublicationYear, patch.PublicationYear)
	fillInt(&b.PagesCount, patch.PagesCount)

	if b.FileSize == 0 {
		b.FileSize = patch.FileSize
	}

	if b.CategoryID == 0 && patch.CategoryID != 0 {
		b.CategoryID = patch.CategoryID
		b.Category = s.taxonomyNames[patch.CategoryID]
	}

	if b.PublisherID == 0 && patch.PublisherID != 0 {
		b.PublisherID = patch.PublisherID
		b.Publisher = s.taxonomyNames[patch.PublisherID]
	}

	b.Hashes, _ = b.Hashes.FillEmpty(patch.Hashes)
	b.UpdatedAt = time.Now()

	return nil
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

// CreateSourceLink stores a link once; repeats return false.
func (s *Store) CreateSourceLink(ctx context.Context, link domain.SourceLink) (bool, error) {
	if s.CreateSourceLinkFn != nil {
		return s.CreateSourceLinkFn(ctx, link)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[link.BookID]; !ok {
		return false, coreerrors.ErrBookNotFound
	}

	key := linkKey{link.BookID, link.SourceName, link.ExternalID}
	if _, ok := s.links[key]; ok {
		return false, nil
	}

	if link.DiscoveredAt.IsZero() {
		link.DiscoveredAt = time.Now()
	}

	s.links[key] = link

	return true, nil
}

// LinkAuthors attaches authors, skipping those already linked.
func (s *Store) LinkAuthors(_ context.Context, bookID int64, authorIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return coreerrors.ErrBookNotFound
	}

	for _, id := range authorIDs {
		name := s.authorNames[id]
		if name == "" || containsFold(b.Authors, name) {
			continue
		}

		b.Authors = append(b.Authors, name)
	}

	return nil
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}

	return false
}

// AddImage appends an image url once.
func (s *Store) AddImage(_ context.Context, bookID int64, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return coreerrors.ErrBookNotFound
	}

	for _, img := range b.Images {
		if img == imageURL {
			return nil
		}
	}

	b.Images = append(b.Images, imageURL)

	return nil
}

// UpsertAuthor returns the id for the case-insensitive name.
func (s *Store) UpsertAuthor(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if id, ok := s.authors[key]; ok {
		return id, nil
	}

	id := s.id()
	s.authors[key] = id
	s.authorNames[id] = name

	return id, nil
}

// UpsertCategory returns the id for the category name.
func (s *Store) UpsertCategory(_ context.Context, name string) (int64, error) {
	return s.upsertTaxonomy(s.categories, name), nil
}

// UpsertPublisher returns the id for the publisher name.
func (s *Store) UpsertPublisher(_ context.Context, name string) (int64, error) {
	return s.upsertTaxonomy(s.publishers, name), nil
}

func (s *Store) upsertTaxonomy(m map[string]int64, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	if id, ok := m[key]; ok {
		return id
	}

	id := s.id()
	m[key] = id
	s.taxonomyNames[id] = name

	return id
}

// GetRunCursor returns the stored cursor or nil.
func (s *Store) GetRunCursor(_ context.Context, sourceName string) (*domain.RunCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[sourceName]
	if !ok {
		return nil, nil
	}

	return &c, nil
}

// SaveRunCursor replaces the stored cursor.
func (s *Store) SaveRunCursor(_ context.Context, cursor *domain.RunCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cursor
	c.UpdatedAt = time.Now()
	s.cursors[cursor.SourceName] = c

	return nil
}

// MaxExternalID returns the largest numeric external id linked for the source.
func (s *Store) MaxExternalID(_ context.Context, sourceName string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		maxID int64
		found bool
	)

	for key := range s.links {
		if key.sourceName != sourceName {
			continue
		}

		n, err := strconv.ParseInt(key.externalID, 10, 64)
		if err != nil {
			continue
		}

		if !found || n > maxID {
			maxID, found = n, true
		}
	}

	return maxID, found, nil
}

// FindMissingExternalIDs mirrors the storage anti-join over [1, before).
func (s *Store) FindMissingExternalIDs(_ context.Context, sourceName string, before int64, limit int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[string]struct{})

	for key := range s.links {
		if key.sourceName == sourceName {
			known[key.externalID] = struct{}{}
		}
	}

	for _, f := range s.failures {
		if f.SourceName == sourceName && !f.Resolved {
			known[f.ExternalID] = struct{}{}
		}
	}

	var ids []int64

	for id := int64(1); id < before && len(ids) < limit; id++ {
		if _, ok := known[strconv.FormatInt(id, 10)]; ok {
			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// RecordFailure appends a failure record.
func (s *Store) RecordFailure(ctx context.Context, failure domain.FailureRecord) error {
	if s.RecordFailureFn != nil {
		return s.RecordFailureFn(ctx, failure)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	failure.ID = s.id()
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now()
	}

	s.failures = append(s.failures, failure)

	return nil
}

// ResolveFailures marks open failures of the external id as resolved.
func (s *Store) ResolveFailures(_ context.Context, sourceName, externalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for i := range s.failures {
		f := &s.failures[i]
		if f.SourceName == sourceName && f.ExternalID == externalID && !f.Resolved {
			f.Resolved = true
			n++
		}
	}

	return n, nil
}

// RegisterSource records the source definition.
func (s *Store) RegisterSource(_ context.Context, cfg *domain.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources[cfg.Name] = *cfg

	return nil
}

// SaveRun appends a run summary.
func (s *Store) SaveRun(_ context.Context, summary domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, summary)

	return nil
}

// Helpers for tests.

// PutBook stores a book directly and returns its id.
func (s *Store) PutBook(book domain.Book) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	book.ID = s.id()
	s.books[book.ID] = &book
	s.byFingerprint[book.Fingerprint] = book.ID

	return book.ID
}

// PutSourceLink stores a link directly.
func (s *Store) PutSourceLink(link domain.SourceLink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links[linkKey{link.BookID, link.SourceName, link.ExternalID}] = link
}

// Book returns a copy of the book with the given id or nil.
func (s *Store) Book(id int64) *domain.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.copyBook(id)
}

func (s *Store) copyBook(id int64) *domain.Book {
	b, ok := s.books[id]
	if !ok {
		return nil
	}

	c := *b
	c.Authors = append([]string(nil), b.Authors...)
	c.Images = append([]string(nil), b.Images...)

	return &c
}

// BookCount returns the number of stored books.
func (s *Store) BookCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.books)
}

// SourceLinks returns the links of a book ordered by source and external id.
func (s *Store) SourceLinks(bookID int64) []domain.SourceLink {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SourceLink

	for key, link := range s.links {
		if key.bookID == bookID {
			out = append(out, link)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}

		return out[i].ExternalID < out[j].ExternalID
	})

	return out
}

// LinkCount returns the number of stored source links.
func (s *Store) LinkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.links)
}

// Failures returns a copy of the failure trail.
func (s *Store) Failures() []domain.FailureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.FailureRecord(nil), s.failures...)
}

// Runs returns a copy of the stored run summaries.
func (s *Store) Runs() []domain.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.RunSummary(nil), s.runs...)
}

// Registered reports whether a source was registered.
func (s *Store) Registered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sources[name]

	return ok
}

// Reset clears all stored state.
func (s *Store) Reset() {
	fresh := NewStore()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = 0
	s.books = fresh.books
	s.byFingerprint = fresh.byFingerprint
	s.links = fresh.links
	s.authors = fresh.authors
	s.authorNames = fresh.authorNames
	s.categories = fresh.categories
	s.publishers = fresh.publishers
	s.taxonomyNames = fresh.taxonomyNames
	s.cursors = fresh.cursors
	s.failures = nil
	s.sources = fresh.sources
	s.runs = nil
}
