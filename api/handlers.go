/*
handlers.go - HTTP API handlers for the task ledger engine

PURPOSE:
  Exposes the ledger and hierarchy engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Containers:
    GET    /api/containers?level=task      List containers at a level
    POST   /api/containers                 Create container
    GET    /api/containers/{id}            Get container (cached read)
    DELETE /api/containers/{id}            Delete container and subtree
    GET    /api/containers/{id}/children   Direct children
    GET    /api/containers/{id}/stats      Rollup counters
    POST   /api/containers/{id}/status     Change status

  Ledgers:
    GET    /api/containers/{id}/ledgers/{kind}  Read one ledger
    PUT    /api/containers/{id}/ledgers/{kind}  Submit whole edited ledger

IDENTITY:
  The requester identity arrives in X-User-ID and X-User-Name headers,
  set by the authenticating reverse proxy in front of this service.
  Mutating ledger endpoints refuse requests without X-User-ID.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (rejection list in details)
  - 401: Missing identity on a ledger mutation
  - 404: Container not found
  - 409: Concurrent modification persisted after retries
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/engine.go: The Propagator these handlers delegate to
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/task-ledger/cache"
	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
	"github.com/warp/task-ledger/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the HTTP layer needs: everything the
// engine needs plus container CRUD.
type Store interface {
	engine.Store
	CreateContainer(ctx context.Context, c hierarchy.Container) error
	DeleteContainer(ctx context.Context, id hierarchy.ContainerID) error
	ListContainers(ctx context.Context, level hierarchy.Level) ([]hierarchy.Container, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Propagator *engine.Propagator

	// Cache serves container reads; nil disables caching.
	Cache *cache.ContainerCache

	// Bus feeds the SSE event stream; nil disables /api/events.
	Bus *notify.Bus

	Log *log.Logger
}

// NewHandler creates a new handler around the store and a default
// propagator. Callers replace collaborators before serving.
func NewHandler(store Store) *Handler {
	return &Handler{
		Store:      store,
		Propagator: engine.New(store),
		Log:        log.Default(),
	}
}

// =============================================================================
// CONTAINER HANDLERS
// =============================================================================

// ListContainers returns all containers at the level named by the query.
func (h *Handler) ListContainers(w http.ResponseWriter, r *http.Request) {
	level := hierarchy.Level(r.URL.Query().Get("level"))
	if !level.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown or missing level", nil)
		return
	}

	containers, err := h.Store.ListContainers(r.Context(), level)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list containers", err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerDTOs(containers))
}

// GetContainer returns a single container, served from the cache when
// one is configured.
func (h *Handler) GetContainer(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))

	c, err := h.loadContainer(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerDTO(*c))
}

// CreateContainer creates a new work item. The parent, when given, must
// exist and sit exactly one level above.
func (h *Handler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	var req CreateContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	level := hierarchy.Level(req.Level)
	if !level.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown level", nil)
		return
	}

	c := hierarchy.Container{
		ID:       hierarchy.ContainerID(req.ID),
		Level:    level,
		ParentID: hierarchy.ContainerID(req.ParentID),
		BoardID:  req.BoardID,
		ListID:   req.ListID,
		Title:    req.Title,
		Status:   hierarchy.StatusOpen,
	}
	if c.ID == "" {
		c.ID = hierarchy.ContainerID(uuid.NewString())
	}

	if c.ParentID != "" {
		parent, err := h.Store.LoadContainer(r.Context(), c.ParentID)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		if expected, ok := parent.Level.Child(); !ok || expected != level {
			writeError(w, http.StatusBadRequest, "Parent level does not admit this child level", nil)
			return
		}
		// Inherit board placement from the parent.
		if c.BoardID == "" {
			c.BoardID = parent.BoardID
		}
		if c.ListID == "" {
			c.ListID = parent.ListID
		}
	} else if level != hierarchy.LevelTask {
		writeError(w, http.StatusBadRequest, "Only tasks may be created without a parent", nil)
		return
	}

	if err := h.Store.CreateContainer(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create container", err)
		return
	}

	if c.ParentID != "" {
		h.Propagator.ChildChanged(r.Context(), c.ParentID)
	}
	writeJSON(w, http.StatusCreated, toContainerDTO(c))
}

// DeleteContainer removes a container and its whole subtree.
func (h *Handler) DeleteContainer(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))

	c, err := h.Store.LoadContainer(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	// Deletion removes the whole subtree, so every descendant must leave
	// the cache too, not just the named container.
	subtree := h.subtreeIDs(r.Context(), id)

	if err := h.Store.DeleteContainer(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}

	if h.Cache != nil {
		h.Cache.Drop(subtree...)
	}
	if c.ParentID != "" {
		h.Propagator.ChildChanged(r.Context(), c.ParentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChildren returns the direct children of a container.
func (h *Handler) GetChildren(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))

	if _, err := h.Store.LoadContainer(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	children, err := h.Store.Children(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load children", err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerDTOs(children))
}

// GetStats returns the cached rollup counters.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))

	c, err := h.loadContainer(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(c.Stats))
}

// UpdateStatus moves a container to a new status via the propagator, so
// rollups, caches and subscribers follow.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Propagator.UpdateStatus(r.Context(), id, hierarchy.Status(req.Status))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerDTO(*c))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedger returns one of the container's three ledgers.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))
	kind := ledger.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown ledger kind", nil)
		return
	}

	entries, err := h.Store.LoadLedger(r.Context(), id, kind)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(id, kind, entries, nil))
}

// SubmitLedger accepts a whole edited ledger and hands it to the engine.
func (h *Handler) SubmitLedger(w http.ResponseWriter, r *http.Request) {
	id := hierarchy.ContainerID(chi.URLParam(r, "id"))
	kind := ledger.Kind(chi.URLParam(r, "kind"))

	requester, ok := requesterIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req SubmitLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	edits, err := toEntryEdits(req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry date", err)
		return
	}

	res, err := h.Propagator.SubmitLedger(r.Context(), id, kind, edits, requester)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(id, kind, res.Entries, res.Warnings))
}

// =============================================================================
// HELPERS
// =============================================================================

// requesterIdentity extracts the authenticated identity from the trusted
// proxy headers.
func requesterIdentity(r *http.Request) (ledger.Identity, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return ledger.Identity{}, false
	}
	return ledger.Identity{
		UserID:      userID,
		DisplayName: r.Header.Get("X-User-Name"),
	}, true
}

// subtreeIDs collects a container and all its descendants, breadth
// first. Failures cut the walk short; the result is advisory (cache
// eviction), never load-bearing.
func (h *Handler) subtreeIDs(ctx context.Context, root hierarchy.ContainerID) []hierarchy.ContainerID {
	ids := []hierarchy.ContainerID{root}
	for i := 0; i < len(ids); i++ {
		children, err := h.Store.Children(ctx, ids[i])
		if err != nil {
			h.Log.Warn("subtree walk stopped early", "container", ids[i], "err", err)
			break
		}
		for _, c := range children {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (h *Handler) loadContainer(ctx context.Context, id hierarchy.ContainerID) (*hierarchy.Container, error) {
	if h.Cache != nil {
		return h.Cache.Load(ctx, h.Store, id)
	}
	return h.Store.LoadContainer(ctx, id)
}

// writeEngineError maps engine errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Ledger submission rejected",
			Code:    "validation_failed",
			Details: toRejectionDTOs(verr.Rejections),
		})
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Container not found", nil)
	case engine.IsRetryable(err):
		writeError(w, http.StatusConflict, "Concurrent modification, please retry", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		h.Log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
