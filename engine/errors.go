/*
errors.go - Centralized error types for the mutation engine

PURPOSE:
  All error types of the orchestration layer in one place. Outer layers
  (HTTP, CLI) classify with the helpers instead of matching strings.

ERROR CATEGORIES:
  1. Validation errors - hard rejections that abort the whole mutation
  2. Not-found / conflict errors - persistence-level failures
  3. Propagation errors - post-persistence failures that are logged only

USAGE:
  if errors.Is(err, engine.ErrConcurrentModification) { retry / 409 }
  var verr *engine.ValidationError
  if errors.As(err, &verr) { 400 with verr.Rejections }

SEE ALSO:
  - engine.go: Where these are produced
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/warp/task-ledger/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrContainerNotFound is returned when a referenced container does
	// not exist. Surfaced immediately, no partial effects.
	ErrContainerNotFound = errors.New("container not found")

	// ErrConcurrentModification is returned when the optimistic version
	// check detects a conflicting write. Retried a bounded number of
	// times before reaching the caller.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnknownLedgerKind is returned for a kind outside
	// estimation/logged/billed.
	ErrUnknownLedgerKind = errors.New("unknown ledger kind")

	// ErrUnknownStatus is returned for a status outside the fixed set.
	ErrUnknownStatus = errors.New("unknown status")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError aborts a mutation: one or more newly attempted entries
// failed validation. Nothing was persisted; Rejections carries the full
// list of reasons.
type ValidationError struct {
	Rejections []ledger.Rejection
}

func (e *ValidationError) Error() string {
	if len(e.Rejections) == 1 {
		return fmt.Sprintf("ledger submission rejected: %s", e.Rejections[0].Message)
	}
	return fmt.Sprintf("ledger submission rejected: %d entries refused (first: %s)",
		len(e.Rejections), e.Rejections[0].Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrUnknownLedgerKind) ||
		errors.Is(err, ErrUnknownStatus)
}

// IsNotFound returns true if the error indicates a missing container.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContainerNotFound)
}
