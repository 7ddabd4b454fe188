package cursor

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/core/ports/mocks"
)

const testSource = "library"

func newTestCursor(store *mocks.Store) *Cursor {
	logger := zerolog.Nop()

	return New(store, &logger)
}

func linkIDs(store *mocks.Store, ids ...int64) {
	bookID := store.PutBook(domain.Book{Fingerprint: "fp", Title: "Book"})

	for _, id := range ids {
		store.PutSourceLink(domain.SourceLink{
			BookID:     bookID,
			SourceName: testSource,
			ExternalID: strconv.FormatInt(id, 10),
		})
	}
}

func drain(b *Batch) []int64 {
	var out []int64

	for addr := b.Next(); addr != EndOfBatch; addr = b.Next() {
		out = append(out, addr)
	}

	return out
}

func TestStartResolutionOrder(t *testing.T) {
	tests := []struct {
		name   string
		cfg    domain.SourceConfig
		cursor *domain.RunCursor
		links  []int64
		want   int64
	}{
		{
			name: "cold start",
			cfg:  domain.SourceConfig{Name: testSource},
			want: 1,
		},
		{
			name:  "largest linked id",
			cfg:   domain.SourceConfig{Name: testSource},
			links: []int64{3, 41, 7},
			want:  42,
		},
		{
			name:   "auto resume wins over links",
			cfg:    domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{AutoResume: true}},
			cursor: &domain.RunCursor{SourceName: testSource, LastSuccessfulExternalID: 10},
			links:  []int64{41},
			want:   11,
		},
		{
			name:   "resume ignored when disabled",
			cfg:    domain.SourceConfig{Name: testSource},
			cursor: &domain.RunCursor{SourceName: testSource, LastSuccessfulExternalID: 10},
			links:  []int64{41},
			want:   42,
		},
		{
			name:   "explicit start wins",
			cfg:    domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{StartID: 500, AutoResume: true}},
			cursor: &domain.RunCursor{SourceName: testSource, LastSuccessfulExternalID: 10},
			links:  []int64{41},
			want:   500,
		},
		{
			name:   "page mode resumes next page",
			cfg:    domain.SourceConfig{Name: testSource, AddressMode: domain.AddressByPage, Range: domain.RangeConfig{AutoResume: true}},
			cursor: &domain.RunCursor{SourceName: testSource, NextPage: 4},
			want:   4,
		},
		{
			name:  "page mode ignores links",
			cfg:   domain.SourceConfig{Name: testSource, AddressMode: domain.AddressByPage},
			links: []int64{41},
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewStore()
			ctx := context.Background()

			if tt.cursor != nil {
				require.NoError(t, store.SaveRunCursor(ctx, tt.cursor))
			}

			linkIDs(store, tt.links...)

			got, state, err := newTestCursor(store).Start(ctx, &tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NotNil(t, state)
			assert.Equal(t, testSource, state.SourceName)
		})
	}
}

func TestResumeAfterLastSuccessfulID(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRunCursor(ctx, &domain.RunCursor{
		SourceName:               testSource,
		LastSuccessfulExternalID: 77,
	}))

	cfg := &domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{AutoResume: true, BatchSize: 3}}

	b, err := newTestCursor(store).Plan(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(78), b.Next())
}

func TestPlanSequentialBatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.SourceConfig
		want []int64
	}{
		{
			name: "batch size",
			cfg:  domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{StartID: 10, BatchSize: 3}},
			want: []int64{10, 11, 12},
		},
		{
			name: "capped by max id",
			cfg:  domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{StartID: 10, BatchSize: 5, MaxID: 11}},
			want: []int64{10, 11},
		},
		{
			name: "past max id",
			cfg:  domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{StartID: 20, BatchSize: 5, MaxID: 11}},
			want: nil,
		},
		{
			name: "capped by max pages",
			cfg: domain.SourceConfig{
				Name:        testSource,
				AddressMode: domain.AddressByPage,
				Pagination:  domain.Pagination{Enabled: true, MaxPages: 2},
				Range:       domain.RangeConfig{BatchSize: 10},
			},
			want: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newTestCursor(mocks.NewStore()).Plan(context.Background(), &tt.cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.want, drain(b))
			assert.Equal(t, EndOfBatch, b.Next())
			assert.False(t, b.GapFill())
		})
	}
}

func TestPlanFillsGapsFirst(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()

	linkIDs(store, 1, 2, 6, 10)

	require.NoError(t, store.RecordFailure(ctx, domain.FailureRecord{SourceName: testSource, ExternalID: "3"}))

	cfg := &domain.SourceConfig{
		Name:  testSource,
		Range: domain.RangeConfig{FillMissingFields: true, GapLimit: 10, BatchSize: 2},
	}

	b, err := newTestCursor(store).Plan(ctx, cfg)
	require.NoError(t, err)

	assert.True(t, b.GapFill())
	assert.Equal(t, int64(11), b.Start())
	assert.Equal(t, []int64{4, 5, 7, 8, 9}, b.Gaps())
	assert.Equal(t, []domain.AddressRange{{From: 7, To: 9}}, b.MissingRanges())
	assert.Equal(t, []int64{4, 5, 7, 8, 9, 11, 12}, drain(b))
}

func TestPlanGapLimit(t *testing.T) {
	store := mocks.NewStore()
	linkIDs(store, 20)

	cfg := &domain.SourceConfig{
		Name:  testSource,
		Range: domain.RangeConfig{FillMissingFields: true, GapLimit: 4, BatchSize: 1},
	}

	b, err := newTestCursor(store).Plan(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, b.Gaps())
	assert.Equal(t, []int64{1, 2, 3, 4, 21}, drain(b))
}

func TestBatchStop(t *testing.T) {
	cfg := &domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{BatchSize: 10}}

	b, err := newTestCursor(mocks.NewStore()).Plan(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.Next())

	b.Stop()

	assert.Equal(t, EndOfBatch, b.Next())
}

func TestAdvancePersistsMonotonicPosition(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()
	c := newTestCursor(store)

	cfg := &domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{StartID: 1, BatchSize: 5}}

	b, err := c.Plan(ctx, cfg)
	require.NoError(t, err)

	ok := func(addr int64) domain.UnitResult {
		return domain.UnitResult{Address: addr, Results: []domain.ProcessResult{{
			Outcome: domain.OutcomeCreated,
			Delta:   domain.DeltaFor(domain.OutcomeCreated),
		}}}
	}

	failed := domain.UnitResult{Address: 5, Results: []domain.ProcessResult{{
		Outcome: domain.OutcomeFailed,
		Delta:   domain.DeltaFor(domain.OutcomeFailed),
	}}}

	require.NoError(t, c.Advance(ctx, b, ok(3)))
	require.NoError(t, c.Advance(ctx, b, ok(1)))
	require.NoError(t, c.Advance(ctx, b, failed))

	stored, err := store.GetRunCursor(ctx, testSource)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, int64(6), stored.NextID)
	assert.Equal(t, int64(3), stored.LastSuccessfulExternalID)
	assert.Equal(t, domain.StatsDelta{Processed: 3, Created: 2, Failed: 1}, stored.Stats)
	assert.Equal(t, b.State().Stats, stored.Stats)
}

func TestAdvanceGapDoesNotMovePosition(t *testing.T) {
	store := mocks.NewStore()
	ctx := context.Background()
	c := newTestCursor(store)

	linkIDs(store, 1, 5)

	cfg := &domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{FillMissingFields: true, GapLimit: 10, BatchSize: 1}}

	b, err := c.Plan(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 4}, b.Gaps())

	require.NoError(t, c.Advance(ctx, b, domain.UnitResult{Address: 3, Results: []domain.ProcessResult{{
		Outcome: domain.OutcomeCreated,
		Delta:   domain.DeltaFor(domain.OutcomeCreated),
	}}}))

	state := b.State()
	assert.Zero(t, state.NextID)
	assert.Zero(t, state.LastSuccessfulExternalID)
	assert.Equal(t, 1, state.Stats.Processed)
}

func TestBatchConcurrentNext(t *testing.T) {
	cfg := &domain.SourceConfig{Name: testSource, Range: domain.RangeConfig{BatchSize: 200}}

	b, err := newTestCursor(mocks.NewStore()).Plan(context.Background(), cfg)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for addr := b.Next(); addr != EndOfBatch; addr = b.Next() {
				mu.Lock()
				seen[addr]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, seen, 200)

	for addr, n := range seen {
		assert.Equal(t, 1, n, "address %d dispatched more than once", addr)
	}
}

func TestMissingRanges(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want []domain.AddressRange
	}{
		{name: "empty", ids: nil, want: nil},
		{name: "short runs dropped", ids: []int64{1, 2, 5, 9}, want: nil},
		{name: "single range", ids: []int64{4, 5, 6}, want: []domain.AddressRange{{From: 4, To: 6}}},
		{
			name: "mixed",
			ids:  []int64{1, 2, 3, 7, 10, 11, 12, 13},
			want: []domain.AddressRange{{From: 1, To: 3}, {From: 10, To: 13}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingRanges(tt.ids))
		})
	}
}
