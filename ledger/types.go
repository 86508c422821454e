/*
Package ledger implements the collaborative time-entry ledger and its
reconciliation rules.

PURPOSE:
  Each work item carries three ledgers (estimation, logged, billed) of
  time entries contributed by many users at once. Clients submit whole
  edited ledgers; the Reconciler merges a submission against the persisted
  ledger so that no user's request can destroy another user's entries.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeEntry: one unit of reported time, owned by exactly one user
  - Kind: which of the three ledgers an entry belongs to
  - Identity: the authenticated requester (trusted by this layer)
  - EntryEdit / EntryRef: a client edit, explicitly tagged as targeting
    an existing entry or creating a new one

DESIGN PRINCIPLES:
  1. Ownership: owner and occurredOn are immutable after creation
  2. Purity: nothing in this package performs I/O
  3. Explicitness: new-vs-existing is a tagged reference, never inferred
     from the shape of an identifier

SEE ALSO:
  - reconcile.go: The merge algorithm
  - validate.go: Daily cap and date validation
  - rejection.go: Rejection taxonomy (hard vs advisory)
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME ENTRY
// =============================================================================

type EntryID string

// TimeEntry is one unit of reported time on a single ledger.
//
// Owner, OwnerName and OccurredOn are set at creation and never change;
// the reconciler forces them back to their persisted values on every
// subsequent edit. Minutes is the full reported duration (hours folded in).
type TimeEntry struct {
	ID         EntryID `json:"id"`
	Owner      string  `json:"owner"`
	OwnerName  string  `json:"ownerName"`
	Minutes    int     `json:"minutes"`
	Note       string  `json:"note"`
	OccurredOn Date    `json:"occurredOn"`
}

// Hours returns the reported duration as fractional hours.
func (e TimeEntry) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(e.Minutes)).Div(decimal.NewFromInt(60))
}

// TotalMinutes sums reported minutes across entries.
func TotalMinutes(entries []TimeEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Minutes
	}
	return total
}

// TotalHours returns the summed reported time as fractional hours.
func TotalHours(entries []TimeEntry) decimal.Decimal {
	return decimal.NewFromInt(int64(TotalMinutes(entries))).Div(decimal.NewFromInt(60))
}

// =============================================================================
// LEDGER KIND
// =============================================================================

// Kind identifies one of the three ledgers each work item carries.
// The Note field reads as a "reason" on estimation ledgers and as a
// "description" on logged and billed ledgers; the engine treats it the
// same way everywhere.
type Kind string

const (
	KindEstimation Kind = "estimation"
	KindLogged     Kind = "logged"
	KindBilled     Kind = "billed"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEstimation, KindLogged, KindBilled:
		return true
	}
	return false
}

// Kinds lists all ledger kinds.
func Kinds() []Kind {
	return []Kind{KindEstimation, KindLogged, KindBilled}
}

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the authenticated requester. This layer trusts it; how it
// was established is the transport's problem.
type Identity struct {
	UserID      string
	DisplayName string
}

// =============================================================================
// ENTRY EDIT - One element of a client submission
// =============================================================================

// EntryRef identifies the persisted entry an edit targets. The zero value
// means the edit creates a new entry. The transport layer constructs this
// tag; the reconciler never guesses from identifier shape.
type EntryRef struct {
	ID EntryID
}

// ExistingEntry references a persisted entry.
func ExistingEntry(id EntryID) EntryRef { return EntryRef{ID: id} }

// NewEntry marks an edit as creating a new entry.
func NewEntry() EntryRef { return EntryRef{} }

func (r EntryRef) IsNew() bool { return r.ID == "" }

// EntryEdit is one element of a client-submitted ledger.
//
// Owner is deliberately absent: whatever the client claimed about
// ownership was dropped at the transport boundary, and the reconciler
// assigns ownership itself. OccurredOn is only honored for new entries
// (zero means "today"); for existing entries the persisted date wins.
type EntryEdit struct {
	Ref        EntryRef
	Hours      int
	Minutes    int
	Note       string
	OccurredOn Date
}

// TotalMinutes folds the hour and minute components together.
func (e EntryEdit) TotalMinutes() int {
	return e.Hours*60 + e.Minutes
}

// EditsOf re-expresses a ledger as the edit list a client would submit to
// keep it unchanged. Feeding the result back through Reconcile is a no-op.
func EditsOf(entries []TimeEntry) []EntryEdit {
	edits := make([]EntryEdit, len(entries))
	for i, e := range entries {
		edits[i] = EntryEdit{
			Ref:        ExistingEntry(e.ID),
			Hours:      e.Minutes / 60,
			Minutes:    e.Minutes % 60,
			Note:       e.Note,
			OccurredOn: e.OccurredOn,
		}
	}
	return edits
}
