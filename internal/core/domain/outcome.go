package domain

import "time"

// Outcome is the result of reconciling one record.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeEnhanced         Outcome = "enhanced"
	OutcomeSourceAdded      Outcome = "source_added"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeFailed           Outcome = "failed"
)

// StatsDelta is the counter change produced by one record.
// Processed is always 1 and exactly one of the other counters is 1.
type StatsDelta struct {
	Processed   int
	Created     int
	Enhanced    int
	SourceAdded int
	Duplicate   int
	Failed      int
}

// DeltaFor builds the stats delta of an outcome.
func DeltaFor(o Outcome) StatsDelta {
	d := StatsDelta{Processed: 1}

	switch o {
	case OutcomeCreated:
		d.Created = 1
	case OutcomeEnhanced:
		d.Enhanced = 1
	case OutcomeSourceAdded:
		d.SourceAdded = 1
	case OutcomeAlreadyProcessed:
		d.Duplicate = 1
	default:
		d.Failed = 1
	}

	return d
}

// Add returns the sum of two deltas.
func (d StatsDelta) Add(o StatsDelta) StatsDelta {
	return StatsDelta{
		Processed:   d.Processed + o.Processed,
		Created:     d.Created + o.Created,
		Enhanced:    d.Enhanced + o.Enhanced,
		SourceAdded: d.SourceAdded + o.SourceAdded,
		Duplicate:   d.Duplicate + o.Duplicate,
		Failed:      d.Failed + o.Failed,
	}
}

// Balanced reports whether the outcome counters add up to Processed.
func (d StatsDelta) Balanced() bool {
	return d.Created+d.Enhanced+d.SourceAdded+d.Duplicate+d.Failed == d.Processed
}

// ProcessResult is the per-record output handed to the orchestration layer.
type ProcessResult struct {
	ExternalID string
	Outcome    Outcome
	Delta      StatsDelta
	BookID     int64
	Title      string
	Reason     string
	HTTPStatus int
	Err        error
}

// UnitResult collects the results of one unit of work.
type UnitResult struct {
	Address   int64
	Results   []ProcessResult
	EndOfData bool
}

// Delta sums the deltas of all records in the unit.
func (u UnitResult) Delta() StatsDelta {
	var total StatsDelta

	for _, r := range u.Results {
		total = total.Add(r.Delta)
	}

	return total
}

// Succeeded reports whether at least one record in the unit was stored or matched.
func (u UnitResult) Succeeded() bool {
	for _, r := range u.Results {
		if r.Outcome != OutcomeFailed {
			return true
		}
	}

	return false
}

// RunCursor is the persisted per-source iteration position.
type RunCursor struct {
	SourceName               string
	NextID                   int64
	NextPage                 int64
	LastSuccessfulExternalID int64
	Stats                    StatsDelta
	UpdatedAt                time.Time
}

// FailureRecord is one entry of the append-only failure audit trail.
type FailureRecord struct {
	ID         int64
	SourceName string
	ExternalID string
	Reason     string
	HTTPStatus int
	CreatedAt  time.Time
	Resolved   bool
}

// AddressRange is an inclusive range of unit addresses.
type AddressRange struct {
	From int64
	To   int64
}

// Len returns the number of addresses in the range.
func (r AddressRange) Len() int64 {
	return r.To - r.From + 1
}

// RunSummary is the aggregate result of one run handed to reporting.
type RunSummary struct {
	RunID          string
	SourceName     string
	StartedAt      time.Time
	FinishedAt     time.Time
	Stats          StatsDelta
	FirstAddress   int64
	LastAddress    int64
	GapFill        bool
	MissingRanges  []AddressRange
	StoppedEarly   bool
	ReachedEndData bool
}

// Elapsed returns the wall time of the run.
func (s RunSummary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
