/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

OWNERSHIP BOUNDARY:
  EntryEditDTO deliberately has no owner field. Whatever a client claims
  about entry ownership is dropped right here, before the engine ever
  sees the submission; the reconciler assigns ownership from the
  authenticated identity.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types these map to
*/
package api

import (
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ContainerDTO represents a work item in API responses.
type ContainerDTO struct {
	ID       string   `json:"id"`
	Level    string   `json:"level"`
	ParentID string   `json:"parent_id,omitempty"`
	BoardID  string   `json:"board_id,omitempty"`
	ListID   string   `json:"list_id,omitempty"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Version  int64    `json:"version"`
	Stats    StatsDTO `json:"stats"`
}

// StatsDTO carries the cached rollup counters plus derived percentages.
type StatsDTO struct {
	ChildTotal          int    `json:"child_total"`
	ChildCompleted      int    `json:"child_completed"`
	GrandchildTotal     int    `json:"grandchild_total"`
	GrandchildCompleted int    `json:"grandchild_completed"`
	CompletionPercent   string `json:"completion_percent"`
}

// CreateContainerRequest is the request to create a work item.
type CreateContainerRequest struct {
	ID       string `json:"id,omitempty"` // server-generated when empty
	Level    string `json:"level"`
	ParentID string `json:"parent_id,omitempty"`
	BoardID  string `json:"board_id,omitempty"`
	ListID   string `json:"list_id,omitempty"`
	Title    string `json:"title"`
}

// UpdateStatusRequest moves a container to a new status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// EntryDTO represents one time entry in API responses.
type EntryDTO struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	OwnerName  string `json:"owner_name"`
	Minutes    int    `json:"minutes"`
	Hours      string `json:"hours"`
	Note       string `json:"note"`
	OccurredOn string `json:"occurred_on"`
}

// EntryEditDTO is one element of a submitted ledger. An empty id means
// "create a new entry". There is no owner field on purpose.
type EntryEditDTO struct {
	ID         string `json:"id,omitempty"`
	Hours      int    `json:"hours"`
	Minutes    int    `json:"minutes"`
	Note       string `json:"note"`
	OccurredOn string `json:"occurred_on,omitempty"`
}

// SubmitLedgerRequest is the whole-ledger submission body.
type SubmitLedgerRequest struct {
	Entries []EntryEditDTO `json:"entries"`
}

// RejectionDTO explains one refused or adjusted element of a submission.
type RejectionDTO struct {
	Kind    string `json:"kind"`
	EntryID string `json:"entry_id,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Date    string `json:"date,omitempty"`
	Message string `json:"message"`
}

// LedgerResponse is returned by ledger reads and successful submissions.
// Warnings carries advisory rejections; their presence does not make the
// submission a failure.
type LedgerResponse struct {
	ContainerID  string         `json:"container_id"`
	Kind         string         `json:"kind"`
	Entries      []EntryDTO     `json:"entries"`
	TotalMinutes int            `json:"total_minutes"`
	TotalHours   string         `json:"total_hours"`
	Warnings     []RejectionDTO `json:"warnings,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toContainerDTO(c hierarchy.Container) ContainerDTO {
	return ContainerDTO{
		ID:       string(c.ID),
		Level:    string(c.Level),
		ParentID: string(c.ParentID),
		BoardID:  c.BoardID,
		ListID:   c.ListID,
		Title:    c.Title,
		Status:   string(c.Status),
		Version:  c.Version,
		Stats:    toStatsDTO(c.Stats),
	}
}

func toContainerDTOs(containers []hierarchy.Container) []ContainerDTO {
	dtos := make([]ContainerDTO, len(containers))
	for i, c := range containers {
		dtos[i] = toContainerDTO(c)
	}
	return dtos
}

func toStatsDTO(s hierarchy.StatsSnapshot) StatsDTO {
	return StatsDTO{
		ChildTotal:          s.ChildTotal,
		ChildCompleted:      s.ChildCompleted,
		GrandchildTotal:     s.GrandchildTotal,
		GrandchildCompleted: s.GrandchildCompleted,
		CompletionPercent:   s.CompletionPercent().StringFixed(2),
	}
}

func toEntryDTO(e ledger.TimeEntry) EntryDTO {
	return EntryDTO{
		ID:         string(e.ID),
		Owner:      e.Owner,
		OwnerName:  e.OwnerName,
		Minutes:    e.Minutes,
		Hours:      e.Hours().StringFixed(2),
		Note:       e.Note,
		OccurredOn: e.OccurredOn.String(),
	}
}

func toLedgerResponse(id hierarchy.ContainerID, kind ledger.Kind, entries []ledger.TimeEntry, warnings []ledger.Rejection) LedgerResponse {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return LedgerResponse{
		ContainerID:  string(id),
		Kind:         string(kind),
		Entries:      dtos,
		TotalMinutes: ledger.TotalMinutes(entries),
		TotalHours:   ledger.TotalHours(entries).StringFixed(2),
		Warnings:     toRejectionDTOs(warnings),
	}
}

func toRejectionDTOs(rejections []ledger.Rejection) []RejectionDTO {
	if len(rejections) == 0 {
		return nil
	}
	dtos := make([]RejectionDTO, len(rejections))
	for i, r := range rejections {
		dtos[i] = RejectionDTO{
			Kind:    string(r.Kind),
			EntryID: string(r.EntryID),
			Owner:   r.Owner,
			Date:    r.Date.String(),
			Message: r.Message,
		}
	}
	return dtos
}

// toEntryEdits maps the transport edits onto domain edits, resolving the
// new-vs-existing tag from the presence of an id.
func toEntryEdits(dtos []EntryEditDTO) ([]ledger.EntryEdit, error) {
	edits := make([]ledger.EntryEdit, len(dtos))
	for i, d := range dtos {
		ref := ledger.NewEntry()
		if d.ID != "" {
			ref = ledger.ExistingEntry(ledger.EntryID(d.ID))
		}
		var occurredOn ledger.Date
		if d.OccurredOn != "" {
			parsed, err := ledger.ParseDate(d.OccurredOn)
			if err != nil {
				return nil, err
			}
			occurredOn = parsed
		}
		edits[i] = ledger.EntryEdit{
			Ref:        ref,
			Hours:      d.Hours,
			Minutes:    d.Minutes,
			Note:       d.Note,
			OccurredOn: occurredOn,
		}
	}
	return edits, nil
}
