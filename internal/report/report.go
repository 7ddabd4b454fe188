// Package report publishes run summaries.
package report

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	"github.com/lueurxax/book-harvester/internal/core/ports"
)

// Summary is the wire form of a finished run.
type Summary struct {
	RunID          string        `json:"run_id"`
	Source         string        `json:"source"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	Processed      int           `json:"processed"`
	Created        int           `json:"created"`
	Enhanced       int           `json:"enhanced"`
	SourceAdded    int           `json:"source_added"`
	Duplicate      int           `json:"duplicate"`
	Failed         int           `json:"failed"`
	FirstAddress   int64         `json:"first_address"`
	LastAddress    int64         `json:"last_address"`
	GapFill        bool          `json:"gap_fill"`
	MissingRanges  []RangeReport `json:"missing_ranges,omitempty"`
	StoppedEarly   bool          `json:"stopped_early"`
	ReachedEndData bool          `json:"reached_end_of_data"`
}

// RangeReport is an inclusive range of addresses missing at the source.
type RangeReport struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// FromDomain converts a run summary into its wire form.
func FromDomain(s domain.RunSummary) Summary {
	out := Summary{
		RunID:          s.RunID,
		Source:         s.SourceName,
		StartedAt:      s.StartedAt.UTC(),
		FinishedAt:     s.FinishedAt.UTC(),
		ElapsedSeconds: s.Elapsed().Seconds(),
		Processed:      s.Stats.Processed,
		Created:        s.Stats.Created,
		Enhanced:       s.Stats.Enhanced,
		SourceAdded:    s.Stats.SourceAdded,
		Duplicate:      s.Stats.Duplicate,
		Failed:         s.Stats.Failed,
		FirstAddress:   s.FirstAddress,
		LastAddress:    s.LastAddress,
		GapFill:        s.GapFill,
		StoppedEarly:   s.StoppedEarly,
		ReachedEndData: s.ReachedEndData,
	}

	for _, r := range s.MissingRanges {
		out.MissingRanges = append(out.MissingRanges, RangeReport{From: r.From, To: r.To})
	}

	return out
}

// LogReporter writes run summaries to the log.
type LogReporter struct {
	logger *zerolog.Logger
}

// NewLogReporter creates a reporter logging at Info.
func NewLogReporter(logger *zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs the summary, including the ranges of ids missing at the source.
func (r *LogReporter) Report(_ context.Context, s domain.RunSummary) error {
	event := r.logger.Info().
		Str("run_id", s.RunID).
		Str("source", s.SourceName).
		Int("processed", s.Stats.Processed).
		Int("created", s.Stats.Created).
		Int("enhanced", s.Stats.Enhanced).
		Int("source_added", s.Stats.SourceAdded).
		Int("duplicate", s.Stats.Duplicate).
		Int("failed", s.Stats.Failed).
		Int64("first_address", s.FirstAddress).
		Int64("last_address", s.LastAddress)

	if len(s.MissingRanges) > 0 {
		event = event.Interface("missing_ranges", FromDomain(s).MissingRanges)
	}

	event.Msg("run report")

	return nil
}

// Multi fans a summary out to several reporters and returns the first error.
type Multi []ports.Reporter

// Report calls every reporter even when one fails.
func (m Multi) Report(ctx context.Context, s domain.RunSummary) error {
	var first error

	for _, r := range m {
		if err := r.Report(ctx, s); err != nil && first == nil {
			first = err
		}
	}

	return first
}
