package services

import "errors"

var (
	// ErrInvalidCoordinates rejects out-of-range latitude/longitude before
	// any write happens
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrTeamNotFound means the tenant/team reference resolved to nothing
	ErrTeamNotFound = errors.New("team not found")

	// ErrRecordNotFound means no location/route record exists yet for a
	// resolved team. Reads treat this as a valid "no data" state.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConcurrencyConflict means a compare-and-set write lost a race on
	// the same record. The caller should retry.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// ErrInvalidTransition rejects a route status change the state machine
	// does not allow
	ErrInvalidTransition = errors.New("invalid route status transition")

	// ErrCollaboratorUnavailable means a task/roster lookup failed or timed
	// out. Availability and metrics degrade to zero values instead of
	// propagating it.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
