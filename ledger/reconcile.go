/*
reconcile.go - Merge of a client-submitted ledger against the persisted one

PURPOSE:
  Clients edit a ledger as a whole and submit the result. Reconcile merges
  that submission with what is persisted so that concurrent users cannot
  destroy each other's entries, impersonate each other, or move entries to
  other days.

RULES (per submitted element):
  Existing, owned by requester:   minutes and note may change; owner,
                                  display name and date are forced back to
                                  the persisted values.
  Existing, owned by someone else: copied through verbatim, edits ignored.
  New (no ref, or unrecognized):  owner forced to the requester, date
                                  defaults to today, validated before
                                  admission; a failure drops the entry and
                                  records a hard Rejection.

TWO PASSES:
  The first pass only classifies edits and builds the prospective ledger:
  every requester entry that survives if all changed and new entries are
  admitted. The second pass validates each changed or new entry against
  that full set minus itself. Validation therefore cannot depend on the
  order elements appear in the submission: deleted entries never consume
  headroom, and a cap rejection always blames an entry that changed,
  never an untouched kept one.

DELETIONS:
  A persisted entry absent from the submission is a deletion. The
  requester may delete their own entries; anyone else's are force-restored
  with an advisory Rejection. This is the anti-corruption invariant: no
  request, however shaped, removes another user's entries.

IDEMPOTENCE:
  Reconciling a merged ledger against itself (EditsOf) is a no-op.
*/
package ledger

import "github.com/google/uuid"

// Reconciler merges client ledger submissions. The zero value is usable;
// the function fields exist so tests can pin time and identifiers.
type Reconciler struct {
	// Today supplies the server-time calendar day. Nil means ledger.Today.
	Today func() Date

	// NewID mints identifiers for admitted entries. Nil means UUIDs.
	NewID func() EntryID

	// DailyCapMinutes overrides the per-owner daily cap; zero means
	// DefaultDailyCapMinutes.
	DailyCapMinutes int
}

// candidate is a requester entry whose reported time is new or changed
// and so must pass validation. original is the persisted version to
// restore on rejection; nil for brand-new entries.
type candidate struct {
	entry    TimeEntry
	original *TimeEntry
}

// Reconcile merges incoming edits into the persisted ledger on behalf of
// requester. It is pure: no I/O, no mutation of its inputs. The returned
// merged ledger is complete and self-consistent regardless of rejections;
// callers decide whether hard rejections abort persistence.
func (r *Reconciler) Reconcile(persisted []TimeEntry, incoming []EntryEdit, requester Identity) Result {
	validator := CapValidator{Today: r.today(), DailyCapMinutes: r.DailyCapMinutes}

	byID := make(map[EntryID]TimeEntry, len(persisted))
	for _, e := range persisted {
		byID[e.ID] = e
	}

	var (
		merged     []TimeEntry
		rejections []Rejection
		seen       = make(map[EntryID]bool, len(persisted))

		// The requester's entries with unchanged reported time. Like
		// foreign entries, they are trusted as already-valid history and
		// never re-checked.
		kept       []TimeEntry
		candidates []candidate
	)

	// First pass: classify every edit. Nothing is validated here, so the
	// outcome cannot depend on submission order.
	for _, edit := range incoming {
		existing, recognized := byID[edit.Ref.ID]
		if !edit.Ref.IsNew() && recognized {
			if seen[existing.ID] {
				// Duplicate reference to the same entry; the first
				// submission already decided its fate.
				continue
			}
			seen[existing.ID] = true

			if existing.Owner != requester.UserID {
				// Read-only from the requester's point of view.
				merged = append(merged, existing)
				continue
			}

			updated := existing
			updated.Minutes = edit.TotalMinutes()
			updated.Note = edit.Note
			// Owner, display name and date always come from the persisted
			// entry, whatever the client sent.

			if updated.Minutes == existing.Minutes {
				kept = append(kept, updated)
				continue
			}
			original := existing
			candidates = append(candidates, candidate{entry: updated, original: &original})
			continue
		}

		// New entry: no reference, or one we do not recognize (not yet
		// persisted, malformed, or foreign). Ownership is always the
		// requester's, never whatever the client claimed.
		entry := TimeEntry{
			ID:         r.newID(),
			Owner:      requester.UserID,
			OwnerName:  requester.DisplayName,
			Minutes:    edit.TotalMinutes(),
			Note:       edit.Note,
			OccurredOn: edit.OccurredOn,
		}
		if entry.OccurredOn.IsZero() {
			entry.OccurredOn = validator.Today
		}
		candidates = append(candidates, candidate{entry: entry})
	}

	// Deletion pass: anything persisted but not referenced is being
	// deleted. Own entries go quietly; foreign ones come back.
	for _, e := range persisted {
		if seen[e.ID] {
			continue
		}
		if e.Owner == requester.UserID {
			continue
		}
		merged = append(merged, e)
		rejections = append(rejections, Rejection{
			Kind:    RejectForeignDelete,
			EntryID: e.ID,
			Owner:   e.Owner,
			Date:    e.OccurredOn,
			Message: "cannot delete another user's entry; it has been restored",
		})
	}

	// The prospective ledger: every requester entry that survives if all
	// candidates are admitted. Each candidate is validated against this
	// full set; the validator excludes the candidate itself by ID.
	prospective := make([]TimeEntry, 0, len(kept)+len(candidates))
	prospective = append(prospective, kept...)
	for _, c := range candidates {
		prospective = append(prospective, c.entry)
	}

	// Second pass: validate the candidates. A rejected edit restores the
	// persisted version; a rejected new entry is dropped.
	for _, c := range candidates {
		if rej := validator.Validate(c.entry, prospective, c.entry.ID); rej != nil {
			rejections = append(rejections, *rej)
			if c.original != nil {
				merged = append(merged, *c.original)
			}
			continue
		}
		merged = append(merged, c.entry)
	}
	merged = append(merged, kept...)

	return Result{Merged: merged, Rejections: rejections}
}

func (r *Reconciler) today() Date {
	if r.Today != nil {
		return r.Today()
	}
	return Today()
}

func (r *Reconciler) newID() EntryID {
	if r.NewID != nil {
		return r.NewID()
	}
	return EntryID(uuid.NewString())
}
