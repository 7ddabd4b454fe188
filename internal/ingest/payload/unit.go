package payload

// Unit is one fetched record together with the address it was fetched from.
type Unit struct {
	// Address is the external id or page number the record came from.
	Address int64
	// FallbackID identifies the record when the payload carries no external id.
	FallbackID string
	// Record is the JSON subtree or HTML selection holding the record.
	Record Resolvable
	// Standalone is true when Record is a whole page rather than one item of a listing.
	Standalone bool
}

// IsHTML reports whether the unit was parsed from an HTML page.
func (u Unit) IsHTML() bool {
	_, ok := u.Record.(*Document)

	return ok
}
