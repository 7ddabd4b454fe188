package mocks

import (
	"context"
	"sync"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// Reporter records published run summaries.
type Reporter struct {
	mu        sync.Mutex
	summaries []domain.RunSummary

	// ReportFn allows overriding Report behavior.
	ReportFn func(ctx context.Context, summary domain.RunSummary) error
}

// Report stores the summary.
func (r *Reporter) Report(ctx context.Context, summary domain.RunSummary) error {
	if r.ReportFn != nil {
		return r.ReportFn(ctx, summary)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries = append(r.summaries, summary)

	return nil
}

// Summaries returns a copy of the reported summaries.
func (r *Reporter) Summaries() []domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.RunSummary(nil), r.summaries...)
}
