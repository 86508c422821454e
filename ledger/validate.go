/*
validate.go - Daily cap and date validation

PURPOSE:
  Guards the two numeric invariants of the ledger: an owner can never have
  more than 24 hours reported for one calendar day, and no entry may be
  dated in the future. Applied only to entries being newly admitted or
  edited by their owner - foreign entries are trusted as already-valid
  history and are never re-checked.

INVARIANTS:
  1. Sum of minutes per (owner, day) in any persisted ledger is <= 1440.
  2. No persisted entry was dated after the server's "today" when admitted.
  3. Every persisted entry reports more than zero minutes.

ORDER INDEPENDENCE:
  The cap check sums whatever sibling set the caller passes, skipping the
  excluded ID. The reconciler passes the full prospective ledger (every
  requester entry that survives if all changed and new entries are
  admitted) and excludes the candidate itself, so the verdict and the
  blamed entry never depend on submission order.

SEE ALSO:
  - reconcile.go: The only caller inside this package
*/
package ledger

import "fmt"

// DefaultDailyCapMinutes is 24 hours: the most time one user can report
// against a single calendar day across one ledger.
const DefaultDailyCapMinutes = 24 * 60

// CapValidator checks a candidate entry against the daily cap and the
// no-future-date rule. It is pure; Today is fixed by the caller so a whole
// reconcile call sees one consistent "today".
type CapValidator struct {
	Today Date

	// DailyCapMinutes overrides the cap; zero means DefaultDailyCapMinutes.
	DailyCapMinutes int
}

// Validate returns nil if the candidate may be admitted, or the Rejection
// explaining why not. siblings is the set of entries the candidate will
// coexist with; exclude names an entry to skip (the pre-edit version of
// the candidate, when validating an edit).
func (v CapValidator) Validate(candidate TimeEntry, siblings []TimeEntry, exclude EntryID) *Rejection {
	if candidate.Minutes <= 0 {
		return &Rejection{
			Kind:    RejectZeroTime,
			EntryID: candidate.ID,
			Owner:   candidate.Owner,
			Date:    candidate.OccurredOn,
			Message: "reported time must be greater than zero",
		}
	}

	if candidate.OccurredOn.After(v.Today) {
		return &Rejection{
			Kind:    RejectFutureDate,
			EntryID: candidate.ID,
			Owner:   candidate.Owner,
			Date:    candidate.OccurredOn,
			Message: fmt.Sprintf("cannot report time for a future date (%s)", candidate.OccurredOn),
		}
	}

	cap := v.DailyCapMinutes
	if cap == 0 {
		cap = DefaultDailyCapMinutes
	}

	used := 0
	for _, s := range siblings {
		if exclude != "" && s.ID == exclude {
			continue
		}
		if s.Owner != candidate.Owner || !s.OccurredOn.Equal(candidate.OccurredOn) {
			continue
		}
		used += s.Minutes
	}

	if used+candidate.Minutes > cap {
		return &Rejection{
			Kind:    RejectDailyCap,
			EntryID: candidate.ID,
			Owner:   candidate.Owner,
			Date:    candidate.OccurredOn,
			Message: fmt.Sprintf("daily cap exceeded: already logged %s on %s, %s of %s left",
				FormatMinutes(used), candidate.OccurredOn, FormatMinutes(cap-used), FormatMinutes(cap)),
		}
	}

	return nil
}

// FormatMinutes renders a minute count as "Xh Ym".
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
