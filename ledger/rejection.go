package ledger

// =============================================================================
// REJECTIONS - Refused sub-operations of a reconcile call
// =============================================================================

// RejectionKind classifies why a sub-operation was refused.
type RejectionKind string

const (
	// RejectZeroTime: the entry reported no time at all.
	RejectZeroTime RejectionKind = "zero_time"

	// RejectFutureDate: the entry is dated after today.
	RejectFutureDate RejectionKind = "future_date"

	// RejectDailyCap: admitting the entry would push the owner past the
	// daily cap for that calendar day.
	RejectDailyCap RejectionKind = "daily_cap_exceeded"

	// RejectForeignDelete: the submission omitted an entry owned by
	// someone else. The entry is restored; the overall mutation still
	// succeeds with this rejection attached as a warning.
	RejectForeignDelete RejectionKind = "foreign_delete_refused"
)

// Rejection describes one refused sub-operation.
type Rejection struct {
	Kind    RejectionKind `json:"kind"`
	EntryID EntryID       `json:"entryId,omitempty"`
	Owner   string        `json:"owner,omitempty"`
	Date    Date          `json:"date,omitempty"`
	Message string        `json:"message"`
}

// Advisory reports whether the rejection is a warning that rides on a
// successful mutation rather than aborting it.
func (r Rejection) Advisory() bool {
	return r.Kind == RejectForeignDelete
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of one reconcile call. Merged is a complete,
// self-consistent ledger; order carries no meaning.
type Result struct {
	Merged     []TimeEntry
	Rejections []Rejection
}

// Hard returns the rejections that must abort the mutation.
func (r Result) Hard() []Rejection {
	var out []Rejection
	for _, rej := range r.Rejections {
		if !rej.Advisory() {
			out = append(out, rej)
		}
	}
	return out
}

// Advisories returns the rejections that accompany a successful mutation.
func (r Result) Advisories() []Rejection {
	var out []Rejection
	for _, rej := range r.Rejections {
		if rej.Advisory() {
			out = append(out, rej)
		}
	}
	return out
}
