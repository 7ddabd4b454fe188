// Package cursor tracks per-source iteration positions.
//
// A Cursor resolves where a run starts, plans the batch of unit addresses the
// run dispatches (previously missed ids first when gap filling is enabled) and
// persists the position after every finished unit so an interrupted run
// resumes instead of rescanning.
package cursor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/core/ports"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
)

// EndOfBatch is returned by Batch.Next when no addresses remain.
const EndOfBatch int64 = -1

const (
	// DefaultBatchSize is used when a source does not set range.batch_size.
	DefaultBatchSize = 100
	// MinMissingRange is the shortest run of missing ids reported as a range.
	MinMissingRange = 3
)

// Cursor resolves and persists iteration positions.
type Cursor struct {
	repo   ports.CursorRepository
	logger *zerolog.Logger
}

// New creates a cursor over the given repository.
func New(repo ports.CursorRepository, logger *zerolog.Logger) *Cursor {
	return &Cursor{repo: repo, logger: logger}
}

// Start resolves the first sequential address of a run. The first match wins:
// an explicit start, the last successful id + 1 under auto-resume, the largest
// linked external id + 1, and finally 1.
func (c *Cursor) Start(ctx context.Context, cfg *domain.SourceConfig) (int64, *domain.RunCursor, error) {
	state, err := c.repo.GetRunCursor(ctx, cfg.Name)
	if err != nil {
		return 0, nil, fmt.Errorf("get run cursor: %w", err)
	}

	if state == nil {
		state = &domain.RunCursor{SourceName: cfg.Name}
	}

	if cfg.Range.StartID > 0 {
		return cfg.Range.StartID, state, nil
	}

	if cfg.Mode() == domain.AddressByPage {
		if cfg.Range.AutoResume && state.NextPage > 0 {
			return state.NextPage, state, nil
		}

		return 1, state, nil
	}

	if cfg.Range.AutoResume && state.LastSuccessfulExternalID > 0 {
		return state.LastSuccessfulExternalID + 1, state, nil
	}

	maxID, ok, err := c.repo.MaxExternalID(ctx, cfg.Name)
	if err != nil {
		return 0, nil, fmt.Errorf("max external id: %w", err)
	}

	if ok {
		return maxID + 1, state, nil
	}

	return 1, state, nil
}

// Plan builds the batch of addresses for one run.
func (c *Cursor) Plan(ctx context.Context, cfg *domain.SourceConfig) (*Batch, error) {
	start, state, err := c.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		source: cfg.Name,
		mode:   cfg.Mode(),
		start:  start,
		state:  *state,
	}

	if b.mode == domain.AddressByID && cfg.Range.FillMissingFields && start > 1 {
		limit := cfg.Range.GapLimit
		if limit <= 0 {
			limit = batchSize(cfg)
		}

		gaps, err := c.repo.FindMissingExternalIDs(ctx, cfg.Name, start, limit)
		if err != nil {
			return nil, fmt.Errorf("find missing external ids: %w", err)
		}

		b.gaps = gaps
		b.ranges = MissingRanges(gaps)

		if len(gaps) > 0 {
			observability.GapsFound.WithLabelValues(cfg.Name).Add(float64(len(gaps)))

			c.logger.Info().
				Str("source", cfg.Name).
				Int("missing", len(gaps)).
				Interface("ranges", b.ranges).
				Msg("filling missing external ids")
		}
	}

	b.end = start + int64(batchSize(cfg))
	if limit := lastAddress(cfg); limit > 0 && b.end > limit+1 {
		b.end = limit + 1
	}

	if b.end < start {
		b.end = start
	}

	observability.CursorPosition.WithLabelValues(cfg.Name).Set(float64(start))

	return b, nil
}

func batchSize(cfg *domain.SourceConfig) int {
	if cfg.Range.BatchSize > 0 {
		return cfg.Range.BatchSize
	}

	return DefaultBatchSize
}

func lastAddress(cfg *domain.SourceConfig) int64 {
	if cfg.Mode() == domain.AddressByPage && cfg.Pagination.MaxPages > 0 {
		return int64(cfg.Pagination.MaxPages)
	}

	return cfg.Range.MaxID
}

// Advance records a finished unit in the batch state and persists the cursor.
func (c *Cursor) Advance(ctx context.Context, b *Batch, res domain.UnitResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(res)

	state := b.state
	if err := c.repo.SaveRunCursor(ctx, &state); err != nil {
		return fmt.Errorf("save run cursor: %w", err)
	}

	observability.CursorPosition.WithLabelValues(b.source).Set(float64(b.position()))

	return nil
}

// Batch is the ordered set of addresses of one run. It is safe for concurrent use.
type Batch struct {
	mu sync.Mutex

	source string
	mode   domain.AddressMode
	start  int64
	end    int64 // exclusive
	gaps   []int64
	ranges []domain.AddressRange

	gapPos  int
	next    int64
	stopped bool

	state domain.RunCursor
}

// Next returns the next address to dispatch or EndOfBatch.
// Previously missed ids come before the sequential range.
func (b *Batch) Next() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return EndOfBatch
	}

	if b.gapPos < len(b.gaps) {
		addr := b.gaps[b.gapPos]
		b.gapPos++

		return addr
	}

	if b.next == 0 {
		b.next = b.start
	}

	if b.next >= b.end {
		return EndOfBatch
	}

	addr := b.next
	b.next++

	return addr
}

// Stop makes every further Next call return EndOfBatch.
func (b *Batch) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
}

// Start returns the first sequential address.
func (b *Batch) Start() int64 {
	return b.start
}

// End returns the exclusive upper bound of the sequential range.
func (b *Batch) End() int64 {
	return b.end
}

// GapFill reports whether the batch revisits missed ids.
func (b *Batch) GapFill() bool {
	return len(b.gaps) > 0
}

// Gaps returns the missed ids scheduled before the sequential range.
func (b *Batch) Gaps() []int64 {
	return append([]int64(nil), b.gaps...)
}

// MissingRanges returns the contiguous missing ranges found while planning.
func (b *Batch) MissingRanges() []domain.AddressRange {
	return append([]domain.AddressRange(nil), b.ranges...)
}

// State returns a copy of the in-memory run cursor.
func (b *Batch) State() domain.RunCursor {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *Batch) isGap(addr int64) bool {
	for _, g := range b.gaps {
		if g == addr {
			return true
		}
	}

	return false
}

// advance must be called with mu held. Positions only move forward so units
// finishing out of order never rewind the cursor.
func (b *Batch) advance(res domain.UnitResult) {
	b.state.Stats = b.state.Stats.Add(res.Delta())

	// an address past the end of data is read again on the next run
	if b.isGap(res.Address) || (res.EndOfData && len(res.Results) == 0) {
		return
	}

	if b.mode == domain.AddressByPage {
		if res.Address+1 > b.state.NextPage {
			b.state.NextPage = res.Address + 1
		}

		return
	}

	if res.Address+1 > b.state.NextID {
		b.state.NextID = res.Address + 1
	}

	if res.Succeeded() && res.Address > b.state.LastSuccessfulExternalID {
		b.state.LastSuccessfulExternalID = res.Address
	}
}

func (b *Batch) position() int64 {
	if b.mode == domain.AddressByPage {
		return b.state.NextPage
	}

	return b.state.NextID
}

// MissingRanges groups ascending ids into contiguous ranges of at least MinMissingRange ids.
func MissingRanges(ids []int64) []domain.AddressRange {
	var out []domain.AddressRange

	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}

		r := domain.AddressRange{From: ids[i], To: ids[j]}
		if r.Len() >= MinMissingRange {
			out = append(out, r)
		}

		i = j + 1
	}

	return out
}
