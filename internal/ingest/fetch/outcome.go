package fetch

import "github.com/lueurxax/book-harvester/internal/ingest/payload"

// Outcome is the result of fetching one unit address. It is one of Records,
// EndOfData, Transient or Missing.
type Outcome interface {
	outcome()
	// Result names the outcome for metrics and logs.
	Result() string
}

// Records carries the records found at an address.
type Records struct {
	Units []payload.Unit
	// LastPage is set when a paginated source shows no next-page link.
	LastPage bool
	Status   int
}

// EndOfData means the source has nothing at or beyond the address.
type EndOfData struct {
	Status int
}

// Transient means the fetch failed after retries; the unit may succeed on a later run.
type Transient struct {
	Err      error
	Status   int
	Attempts int
}

// Missing means the source permanently lacks the addressed record.
type Missing struct {
	Status int
}

func (Records) outcome()   {}
func (EndOfData) outcome() {}
func (Transient) outcome() {}
func (Missing) outcome()   {}

// Result implements Outcome.
func (Records) Result() string { return "records" }

// Result implements Outcome.
func (EndOfData) Result() string { return "end_of_data" }

// Result implements Outcome.
func (Transient) Result() string { return "transient" }

// Result implements Outcome.
func (Missing) Result() string { return "missing" }
